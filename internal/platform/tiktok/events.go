package tiktok

import (
	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/platform"
)

const (
	viewContent          = "ViewContent"
	search               = "Search"
	clickButton          = "ClickButton"
	lead                 = "Lead"
	purchase             = "Purchase"
	completeRegistration = "CompleteRegistration"
)

var eventNames = platform.NewTable(domain.TikTok, map[string]string{
	"VIEWCONTENT":  viewContent,
	"VIEW_CONTENT": viewContent,
	"PAGE_VIEW":    viewContent,
	"PAGEVIEW":     viewContent,

	"SEARCH": search,

	"CLICKBUTTON":  clickButton,
	"CLICK_BUTTON": clickButton,
	"ADD_TO_CART":  clickButton,
	"ADD_CART":     clickButton,
	"DOWNLOAD":     clickButton,

	"LEAD":      lead,
	"CONTACT":   lead,
	"SUBSCRIBE": lead,

	"PURCHASE":    purchase,
	"BOOKING":     purchase,
	"RESERVATION": purchase,
	"CONVERSION":  purchase,

	"COMPLETEREGISTRATION":  completeRegistration,
	"COMPLETE_REGISTRATION": completeRegistration,
	"REGISTRATION":          completeRegistration,
	"SIGNUP":                completeRegistration,
	"SIGN_UP":               completeRegistration,
})
