package agent

import "strings"

type greetingKind int

const (
	greetHello greetingKind = iota
	greetHowAreYou
	greetThanks
	greetGoodbye
	greetOther
)

var greetingReplies = map[string]map[greetingKind]string{
	"en": {
		greetHello:     "Hello! I'm your technology consulting assistant. How can I help you today?",
		greetHowAreYou: "I'm doing well, thanks for asking! Which technology project can I help you with today?",
		greetThanks:    "You're welcome! I'm here to help with your technical questions and projects. Is there anything else I can do for you?",
		greetGoodbye:   "Goodbye! Come back any time you need help with your technology projects.",
		greetOther:     "I'm here to help with technical questions and technology projects. Do you have a specific question?",
	},
	"es": {
		greetHello:     "¡Hola! Soy el asistente de consultoría tecnológica. ¿En qué puedo ayudarte hoy?",
		greetHowAreYou: "¡Estoy muy bien, gracias por preguntar! ¿En qué proyecto tecnológico puedo ayudarte hoy?",
		greetThanks:    "¡De nada! Estoy aquí para ayudarte con tus consultas y proyectos tecnológicos. ¿Hay algo más en lo que pueda asistirte?",
		greetGoodbye:   "¡Hasta luego! No dudes en volver si necesitas más ayuda con tus proyectos tecnológicos.",
		greetOther:     "Estoy aquí para ayudarte con consultas técnicas y proyectos tecnológicos. ¿Tienes alguna pregunta específica?",
	},
}

var spanishGreetingMarkers = []string{"hola", "buenos", "buenas", "gracias", "adiós", "adios", "chao", "qué tal", "que tal", "cómo estás", "como estas"}

// GreetingResponse returns the short-circuit reply for small talk. Replies
// exist in English and Spanish; other languages fall back to English unless
// the greeting itself is Spanish.
func GreetingResponse(query, language string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	lang := "en"
	if strings.HasPrefix(language, "es") || containsAny(q, spanishGreetingMarkers) {
		lang = "es"
	}
	return greetingReplies[lang][classifyGreeting(q)]
}

func classifyGreeting(q string) greetingKind {
	switch {
	case containsAny(q, []string{"how are you", "cómo estás", "como estas", "qué tal", "que tal", "how's it going"}):
		return greetHowAreYou
	case containsAny(q, []string{"thank", "gracias"}):
		return greetThanks
	case containsAny(q, []string{"bye", "adiós", "adios", "chao"}):
		return greetGoodbye
	case containsAny(q, []string{"hello", "hi", "hey", "howdy", "greetings", "good morning", "good afternoon", "good evening", "hola", "buenos", "buenas", "what's up"}):
		return greetHello
	}
	return greetOther
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
