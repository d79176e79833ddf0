// Package models defines the core data structures for Apollobot.
//
// It includes the Bot Framework activity subset the bot consumes, the catalog
// and pricing types returned by the Ingram Micro API, spreadsheet rows, and
// per-conversation session state. These types are shared across modules.
package models

import (
	"errors"
	"time"
)

// Activity types the bot reacts to. Everything else is ignored.
const (
	// ActivityTypeMessage is a user text message.
	ActivityTypeMessage = "message"
	// ActivityTypeConversationUpdate signals membership changes (members added/removed).
	ActivityTypeConversationUpdate = "conversationUpdate"
)

// Error variables shared across modules for better error handling and testability.
var (
	ErrAuthFailed        = errors.New("credential exchange failed")
	ErrUpstream          = errors.New("upstream service call failed")
	ErrInvalidActivity   = errors.New("invalid activity payload")
	ErrMissingActivityID = errors.New("activity id is required for a reply")
	ErrNoSnapshot        = errors.New("no spreadsheet snapshot loaded")
	ErrNotFound          = errors.New("not found")
)

// ChannelAccount identifies a user or bot on the messaging channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID string `json:"id"`
}

// Activity is the subset of a Bot Framework activity Apollobot consumes.
// Unknown fields in the inbound payload are ignored on decode.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	Timestamp    time.Time            `json:"timestamp,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	From         ChannelAccount       `json:"from,omitempty"`
	Recipient    ChannelAccount       `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	Text         string               `json:"text,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	MembersAdded []ChannelAccount     `json:"membersAdded,omitempty"`
}

// Validate checks that an inbound activity carries the fields the router needs.
func (a *Activity) Validate() error {
	if a.Type == "" {
		return ErrInvalidActivity
	}
	if a.Conversation == nil || a.Conversation.ID == "" {
		return ErrInvalidActivity
	}
	return nil
}

// ConversationID returns the conversation id, or empty when absent.
func (a *Activity) ConversationID() string {
	if a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// CatalogItem is one product row from a catalog keyword search.
type CatalogItem struct {
	Description      string `json:"description"`
	IngramPartNumber string `json:"ingramPartNumber"`
	VendorName       string `json:"vendorName"`
	Category         string `json:"category"`
	SubCategory      string `json:"subCategory"`
	ProductType      string `json:"productType"`
	UPCCode          string `json:"upcCode"`
}

// WarehouseAvailability is the stock count at one warehouse.
type WarehouseAvailability struct {
	Location          string `json:"location"`
	QuantityAvailable int    `json:"quantityAvailable"`
}

// AvailabilityInfo is the stock summary for one part number.
type AvailabilityInfo struct {
	TotalAvailability       int                     `json:"totalAvailability"`
	AvailabilityByWarehouse []WarehouseAvailability `json:"availabilityByWarehouse,omitempty"`
}

// Available reports whether any stock exists.
func (a *AvailabilityInfo) Available() bool {
	return a != nil && a.TotalAvailability > 0
}

// PricingInfo carries optional price data for one part number. Retail and
// customer prices are individually optional and rendered as "N/A" when absent.
type PricingInfo struct {
	CurrencyCode  string   `json:"currencyCode,omitempty"`
	RetailPrice   *float64 `json:"retailPrice,omitempty"`
	CustomerPrice *float64 `json:"customerPrice,omitempty"`
}

// PriceAndAvailabilityEntry is one element of a batched price/availability
// response. Entries pair positionally with the part numbers that were
// requested: the Nth entry describes the Nth requested part.
type PriceAndAvailabilityEntry struct {
	IngramPartNumber string            `json:"ingramPartNumber"`
	VendorPartNumber string            `json:"vendorPartNumber,omitempty"`
	Description      string            `json:"description,omitempty"`
	Availability     *AvailabilityInfo `json:"availability,omitempty"`
	Pricing          *PricingInfo      `json:"pricing,omitempty"`
}

// ProductOffer couples a catalog search row with its price/availability data.
type ProductOffer struct {
	Item CatalogItem
	Info PriceAndAvailabilityEntry
}

// SpreadsheetRow is one row of the product spreadsheet: ordered column names
// plus a name->value map. Column order follows the sheet header row.
type SpreadsheetRow struct {
	Columns []string
	Values  map[string]string
}

// Session is the per-conversation paging state mutated by the router.
type Session struct {
	ConversationID string    `json:"conversation_id"`
	SearchTerm     string    `json:"search_term,omitempty"`
	Page           int       `json:"page"`
	OnlyAvailable  bool      `json:"only_available"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Active reports whether a search is in progress for this session.
func (s *Session) Active() bool {
	return s.SearchTerm != ""
}

// Turn is one inbound/outbound exchange, recorded for auditing.
type Turn struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Inbound        string    `json:"inbound"`
	Outbound       string    `json:"outbound"`
	Time           time.Time `json:"time"`
}
