package engine

import (
	"fmt"
	"strings"
)

// Assistant text is deliberately template-based: the backend owns all
// conversational logic, and speech synthesis happens downstream. Languages
// without a template fall back to English.

func promptAsk(language, label string) string {
	switch baseLang(language) {
	case "ml":
		return fmt.Sprintf("'%s' എന്ന ഫീൽഡിന്റെ വിവരം പറയുക.", label)
	case "hi":
		return fmt.Sprintf("'%s' फ़ील्ड के लिए जानकारी बोलिए।", label)
	default:
		return fmt.Sprintf("Please tell me the value for '%s'.", label)
	}
}

func promptWrite(language, label, value string) string {
	switch baseLang(language) {
	case "ml":
		return fmt.Sprintf("'%s' എന്ന ബോക്സിൽ '%s' എഴുതുക. എഴുതി കഴിഞ്ഞാൽ 'ചെയ്തു' എന്ന് പറയുക.", label, value)
	case "hi":
		return fmt.Sprintf("'%s' बॉक्स में '%s' लिखिए। लिखने के बाद 'हो गया' बोलिए।", label, value)
	default:
		return fmt.Sprintf("Please write '%s' in the '%s' box. Say 'done' when you finish writing.", value, label)
	}
}

func promptPlaceholder(language, label string) string {
	switch baseLang(language) {
	case "ml":
		return fmt.Sprintf("'%s' എന്ന ബോക്സ് പൂരിപ്പിക്കുക. കഴിഞ്ഞാൽ 'ചെയ്തു' എന്ന് പറയുക.", label)
	case "hi":
		return fmt.Sprintf("'%s' बॉक्स भरिए। पूरा होने पर 'हो गया' बोलिए।", label)
	default:
		return fmt.Sprintf("Please fill in the '%s' box. Say 'done' when you finish.", label)
	}
}

func promptCompletion(language string) string {
	switch baseLang(language) {
	case "ml":
		return "എല്ലാ ഫീൽഡുകളും പൂർത്തിയായി. നന്നായി ചെയ്തു!"
	case "hi":
		return "सभी फ़ील्ड पूरे हो गए। बहुत अच्छा!"
	default:
		return "All fields are complete. Great job!"
	}
}

func baseLang(language string) string {
	tag := strings.ToLower(strings.ReplaceAll(language, "_", "-"))
	if i := strings.Index(tag, "-"); i > 0 {
		tag = tag[:i]
	}
	return tag
}
