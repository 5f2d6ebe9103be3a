package snapchat

import (
	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/platform"
)

var eventNames = platform.NewTable(domain.Snapchat, map[string]string{
	"PAGE_VIEW": "PAGE_VIEW",
	"PAGEVIEW":  "PAGE_VIEW",

	"VIEW_CONTENT": "VIEW_CONTENT",
	"VIEWCONTENT":  "VIEW_CONTENT",
	"TEST_EVENT":   "VIEW_CONTENT",
	"DOWNLOAD":     "VIEW_CONTENT",

	"ADD_CART":    "ADD_CART",
	"ADDCART":     "ADD_CART",
	"ADD_TO_CART": "ADD_CART",
	"ADDTOCART":   "ADD_CART",

	"PURCHASE":    "PURCHASE",
	"CONVERSION":  "PURCHASE",
	"BOOKING":     "PURCHASE",
	"RESERVATION": "PURCHASE",

	"SIGN_UP":        "SIGN_UP",
	"SIGNUP":         "SIGN_UP",
	"LEAD":           "SIGN_UP",
	"CUSTOM_EVENT_1": "SIGN_UP",
	"CONTACT":        "SIGN_UP",
	"SUBSCRIBE":      "SIGN_UP",

	"COMPLETE_REGISTRATION": "COMPLETE_REGISTRATION",
	"COMPLETEREGISTRATION":  "COMPLETE_REGISTRATION",
	"REGISTRATION":          "COMPLETE_REGISTRATION",
})
