package guard

import (
	"golang.org/x/text/language"
)

// supported locales, in matcher order; the first is the fallback.
var supported = []language.Tag{
	language.English,
	language.French,
	language.Spanish,
}

var catalogs = map[language.Tag]map[Kind]string{
	language.English: {
		KindUnknown:          "Something went wrong. Please try again.",
		KindPermissionDenied: "You don't have permission to do that. Please sign in again.",
		KindNotFound:         "We couldn't find what you were looking for.",
		KindAlreadyExists:    "This item already exists.",
		KindUnavailable:      "The service is temporarily unavailable. Please try again in a moment.",
		KindNetwork:          "Network error. Please check your connection.",
		KindTimeout:          "The request took too long. Please try again.",
		KindCancelled:        "The operation was cancelled.",
		KindRender:           "Something went wrong while displaying this page. Please refresh.",
		KindMaps:             "The map service is unavailable right now. Please try again later.",
	},
	language.French: {
		KindUnknown:          "Une erreur est survenue. Veuillez réessayer.",
		KindPermissionDenied: "Vous n'avez pas l'autorisation d'effectuer cette action. Veuillez vous reconnecter.",
		KindNotFound:         "L'élément demandé est introuvable.",
		KindAlreadyExists:    "Cet élément existe déjà.",
		KindUnavailable:      "Le service est temporairement indisponible. Veuillez réessayer dans un instant.",
		KindNetwork:          "Erreur réseau. Veuillez vérifier votre connexion.",
		KindTimeout:          "La requête a pris trop de temps. Veuillez réessayer.",
		KindCancelled:        "L'opération a été annulée.",
		KindRender:           "Un problème est survenu lors de l'affichage de la page. Veuillez actualiser.",
		KindMaps:             "Le service de cartographie est indisponible pour le moment. Veuillez réessayer plus tard.",
	},
	language.Spanish: {
		KindUnknown:          "Algo salió mal. Inténtalo de nuevo.",
		KindPermissionDenied: "No tienes permiso para hacer esto. Vuelve a iniciar sesión.",
		KindNotFound:         "No encontramos lo que buscabas.",
		KindAlreadyExists:    "Este elemento ya existe.",
		KindUnavailable:      "El servicio no está disponible temporalmente. Inténtalo de nuevo en un momento.",
		KindNetwork:          "Error de red. Comprueba tu conexión.",
		KindTimeout:          "La solicitud tardó demasiado. Inténtalo de nuevo.",
		KindCancelled:        "La operación fue cancelada.",
		KindRender:           "Algo salió mal al mostrar esta página. Actualiza la página.",
		KindMaps:             "El servicio de mapas no está disponible ahora. Inténtalo más tarde.",
	},
}

var matcher = language.NewMatcher(supported)

// Localizer turns a Kind into a fixed, user-readable sentence.
type Localizer struct {
	tag     language.Tag
	catalog map[Kind]string
}

// NewLocalizer picks the best supported locale for the given preferences.
// Each preference may be a tag ("fr-CA") or an Accept-Language value.
func NewLocalizer(preferences ...string) *Localizer {
	_, idx := language.MatchStrings(matcher, preferences...)
	tag := supported[idx]
	return &Localizer{tag: tag, catalog: catalogs[tag]}
}

// Locale returns the selected locale.
func (l *Localizer) Locale() language.Tag {
	return l.tag
}

// Message returns the sentence for kind. It is never empty.
func (l *Localizer) Message(kind Kind) string {
	if l == nil {
		return catalogs[language.English][kind.normalize()]
	}
	if msg := l.catalog[kind.normalize()]; msg != "" {
		return msg
	}
	return catalogs[language.English][KindUnknown]
}

// MessageFor classifies err and returns its sentence.
func (l *Localizer) MessageFor(err error) string {
	return l.Message(Classify(err))
}

func (k Kind) normalize() Kind {
	if _, ok := kindNames[k]; ok {
		return k
	}
	return KindUnknown
}
