package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatKES renders an amount as "KES 1,500.00".
func FormatKES(amount float64) string {
	return printer.Sprintf("KES %.2f", amount)
}
