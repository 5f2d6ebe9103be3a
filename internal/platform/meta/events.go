package meta

import (
	"regexp"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/platform"
)

var eventNames = platform.NewTable(domain.Meta, map[string]string{
	"PAGE_VIEW": "PageView",
	"PAGEVIEW":  "PageView",

	"VIEW_CONTENT": "ViewContent",
	"VIEWCONTENT":  "ViewContent",
	"DOWNLOAD":     "ViewContent",

	"LEAD":           "Lead",
	"CUSTOM_EVENT_1": "Lead",

	"CONTACT":   "Contact",
	"SUBSCRIBE": "Subscribe",
	"SEARCH":    "Search",
	"SCHEDULE":  "Schedule",

	"ADD_TO_CART": "AddToCart",
	"ADDTOCART":   "AddToCart",
	"ADD_CART":    "AddToCart",

	"INITIATE_CHECKOUT": "InitiateCheckout",
	"INITIATECHECKOUT":  "InitiateCheckout",

	"PURCHASE":    "Purchase",
	"CONVERSION":  "Purchase",
	"BOOKING":     "Purchase",
	"RESERVATION": "Purchase",

	"COMPLETE_REGISTRATION": "CompleteRegistration",
	"COMPLETEREGISTRATION":  "CompleteRegistration",
	"REGISTRATION":          "CompleteRegistration",
	"SIGN_UP":               "CompleteRegistration",
	"SIGNUP":                "CompleteRegistration",

	"SUBMIT_APPLICATION": "SubmitApplication",
	"SUBMITAPPLICATION":  "SubmitApplication",
})

// Custom event names Meta accepts when AllowCustomEvents is on.
var customEventName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_ \-]{0,39}$`)

func mapEventName(name string, allowCustom bool) (string, error) {
	mapped, err := eventNames.Lookup(name)
	if err == nil {
		return mapped, nil
	}
	if allowCustom && customEventName.MatchString(name) {
		return name, nil
	}
	return "", err
}
