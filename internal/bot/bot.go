// Package bot implements the session router: it classifies inbound messages
// against the command table, maintains per-conversation paging state, and
// dispatches to the catalog, spreadsheet, or fallback answerer.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aera-procure/apollobot/internal/models"
	"github.com/aera-procure/apollobot/internal/store"
)

// Command prefixes, matched in this order against the lowercased message.
const (
	prefixExcelSearch     = "excel search for "
	prefixDirectLookup    = "price and availability for "
	prefixSearchAvailable = "search for available "
	prefixSearchProduct   = "search for product "
	commandNext           = "next"
	commandPrevious       = "previous"
)

// Catalog is the product catalog surface the router dispatches to.
type Catalog interface {
	// SearchWithAvailability returns enriched offers for one result page plus
	// the raw hit count before the availability filter.
	SearchWithAvailability(ctx context.Context, term string, page int, onlyAvailable bool) ([]models.ProductOffer, int, error)

	// Lookup returns price and availability for one part number, or
	// models.ErrNotFound when the catalog knows nothing about it.
	Lookup(ctx context.Context, partNumber string) (*models.PriceAndAvailabilityEntry, error)
}

// Spreadsheet answers keyword searches against the product spreadsheet.
type Spreadsheet interface {
	Search(ctx context.Context, phrase string) ([]models.SpreadsheetRow, error)
}

// SpreadsheetFormatter renders spreadsheet rows; split from Spreadsheet so
// the router does not depend on the excel package directly.
type SpreadsheetFormatter func(rows []models.SpreadsheetRow) string

// Answerer handles free text that matches no command.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, bool, error)
}

// Sender delivers outbound text back through the messaging channel.
type Sender interface {
	ReplyToActivity(ctx context.Context, incoming *models.Activity, text string) error
}

// Router routes one activity at a time per conversation. Cross-conversation
// turns run concurrently; same-conversation turns serialize on the session.
type Router struct {
	catalog  Catalog
	sheet    Spreadsheet
	format   SpreadsheetFormatter
	answerer Answerer
	sender   Sender
	store    store.Store
	sessions *sessions
}

// NewRouter wires a router. The answerer and spreadsheet may be nil when
// unconfigured; their commands degrade to user-facing notices.
func NewRouter(catalog Catalog, sheet Spreadsheet, format SpreadsheetFormatter, answerer Answerer, sender Sender, st store.Store) *Router {
	slog.Debug("Router.NewRouter: created", "has_catalog", catalog != nil, "has_spreadsheet", sheet != nil, "has_answerer", answerer != nil)
	return &Router{
		catalog:  catalog,
		sheet:    sheet,
		format:   format,
		answerer: answerer,
		sender:   sender,
		store:    st,
		sessions: newSessions(st),
	}
}

// HandleActivity processes one inbound activity. Downstream failures are
// converted to chat text; only a malformed activity returns an error.
func (r *Router) HandleActivity(ctx context.Context, activity *models.Activity) error {
	if err := activity.Validate(); err != nil {
		return err
	}

	switch activity.Type {
	case models.ActivityTypeConversationUpdate:
		return r.handleMembersAdded(ctx, activity)
	case models.ActivityTypeMessage:
		return r.handleMessage(ctx, activity)
	default:
		slog.Debug("Router.HandleActivity: ignoring activity type", "type", activity.Type)
		return nil
	}
}

// handleMembersAdded greets each newly added member except the bot itself.
func (r *Router) handleMembersAdded(ctx context.Context, activity *models.Activity) error {
	for _, member := range activity.MembersAdded {
		if member.ID == activity.Recipient.ID {
			continue
		}
		slog.Info("Router.handleMembersAdded: greeting new member", "member_id", member.ID, "conversation_id", activity.ConversationID())
		if err := r.sender.ReplyToActivity(ctx, activity, greetingText); err != nil {
			slog.Error("Router.handleMembersAdded: greeting send failed", "error", err)
		}
	}
	return nil
}

// handleMessage classifies the message against the command table and replies.
func (r *Router) handleMessage(ctx context.Context, activity *models.Activity) error {
	text := strings.TrimSpace(activity.Text)
	if text == "" {
		return models.ErrInvalidActivity
	}
	lower := strings.ToLower(text)
	slog.Debug("Router.handleMessage: received message", "conversation_id", activity.ConversationID(), "text", text)

	var replies []string
	switch {
	case strings.HasPrefix(lower, prefixExcelSearch):
		term := strings.TrimSpace(text[len(prefixExcelSearch):])
		replies = []string{r.excelSearch(ctx, term)}

	case strings.HasPrefix(lower, prefixDirectLookup):
		partNumber := strings.TrimSpace(text[len(prefixDirectLookup):])
		replies = []string{r.directLookup(ctx, partNumber)}

	case strings.HasPrefix(lower, prefixSearchAvailable):
		replies = []string{r.startSearch(ctx, activity.ConversationID(), text[len(prefixSearchAvailable):], true)}

	case strings.HasPrefix(lower, prefixSearchProduct):
		replies = []string{r.startSearch(ctx, activity.ConversationID(), text[len(prefixSearchProduct):], false)}

	case lower == commandNext:
		replies = r.nextPage(ctx, activity.ConversationID())

	case lower == commandPrevious:
		replies = []string{r.previousPage(ctx, activity.ConversationID())}

	default:
		replies = r.fallback(ctx, text)
	}

	for _, reply := range replies {
		if err := r.sender.ReplyToActivity(ctx, activity, reply); err != nil {
			slog.Error("Router.handleMessage: reply send failed", "error", err, "conversation_id", activity.ConversationID())
		}
	}
	r.recordTurn(activity, text, replies)
	return nil
}

// startSearch begins a new catalog search at page 1. The term keeps its
// original casing and spacing.
func (r *Router) startSearch(ctx context.Context, conversationID, term string, onlyAvailable bool) string {
	sess, release := r.sessions.acquire(conversationID)
	defer release()

	sess.SearchTerm = term
	sess.Page = 1
	sess.OnlyAvailable = onlyAvailable
	r.sessions.persist(sess)

	return r.searchPage(ctx, sess)
}

// nextPage advances the active search one page; the paging notice and the
// results go out as separate replies.
func (r *Router) nextPage(ctx context.Context, conversationID string) []string {
	sess, release := r.sessions.acquire(conversationID)
	defer release()

	if !sess.Active() {
		return []string{msgNoActiveSearch}
	}
	sess.Page++
	r.sessions.persist(sess)
	return []string{msgLoadingPage(sess.Page, sess.SearchTerm), r.searchPage(ctx, sess)}
}

// previousPage steps the active search back one page, never below page 1.
func (r *Router) previousPage(ctx context.Context, conversationID string) string {
	sess, release := r.sessions.acquire(conversationID)
	defer release()

	if !sess.Active() {
		return msgNoActiveSearch
	}
	if sess.Page <= 1 {
		return msgAlreadyFirstPage
	}
	sess.Page--
	r.sessions.persist(sess)
	return r.searchPage(ctx, sess)
}

// searchPage runs the two-stage catalog search for the session's current
// state and renders the outcome. Callers hold the session lock.
func (r *Router) searchPage(ctx context.Context, sess *models.Session) string {
	offers, hits, err := r.catalog.SearchWithAvailability(ctx, sess.SearchTerm, sess.Page, sess.OnlyAvailable)
	if err != nil {
		slog.Error("Router.searchPage: catalog search failed", "error", err, "term", sess.SearchTerm, "page", sess.Page)
		return renderCatalogError(err)
	}
	if hits == 0 {
		return msgNoSearchResults(sess.Page)
	}
	if len(offers) == 0 {
		return msgNoFilteredResults(sess.Page)
	}
	slog.Info("Router.searchPage: sending search results", "term", sess.SearchTerm, "page", sess.Page, "offers", len(offers))
	return renderOffers(sess.SearchTerm, sess.Page, offers)
}

// directLookup fetches price and availability for one part number.
func (r *Router) directLookup(ctx context.Context, partNumber string) string {
	entry, err := r.catalog.Lookup(ctx, partNumber)
	if errors.Is(err, models.ErrNotFound) {
		return msgLookupNotFound(partNumber)
	}
	if err != nil {
		slog.Error("Router.directLookup: lookup failed", "error", err, "part_number", partNumber)
		return renderCatalogError(err)
	}
	slog.Info("Router.directLookup: sending price and availability", "part_number", partNumber)
	return renderLookup(entry)
}

// excelSearch runs the spreadsheet keyword search.
func (r *Router) excelSearch(ctx context.Context, term string) string {
	if r.sheet == nil {
		return msgExcelUnavailable
	}
	rows, err := r.sheet.Search(ctx, term)
	if err != nil {
		slog.Error("Router.excelSearch: spreadsheet search failed", "error", err, "term", term)
		return msgExcelUnavailable
	}
	if len(rows) == 0 {
		return msgExcelNoResults(term)
	}
	return msgExcelResults(term, r.format(rows))
}

// fallback forwards unmatched text to the answerer; unmeaningful or failed
// replies fall through to the fixed help text.
func (r *Router) fallback(ctx context.Context, question string) []string {
	if r.answerer == nil {
		return []string{helpText}
	}
	answer, meaningful, err := r.answerer.Answer(ctx, question)
	if err != nil {
		slog.Error("Router.fallback: answerer failed", "error", err)
		return []string{msgQuestionError(err), helpText}
	}
	if !meaningful {
		slog.Debug("Router.fallback: model reply not meaningful, sending help text")
		return []string{helpText}
	}
	return []string{answer}
}

// recordTurn logs the exchange to the store, best-effort.
func (r *Router) recordTurn(activity *models.Activity, inbound string, replies []string) {
	turn := models.Turn{
		ConversationID: activity.ConversationID(),
		UserID:         activity.From.ID,
		Inbound:        inbound,
		Outbound:       strings.Join(replies, "\n"),
		Time:           time.Now(),
	}
	if err := r.store.AddTurn(turn); err != nil {
		slog.Warn("Router.recordTurn: turn log failed", "error", err, "conversation_id", turn.ConversationID)
	}
}

// renderCatalogError converts a catalog failure into user-facing text.
func renderCatalogError(err error) string {
	if errors.Is(err, models.ErrUpstream) || errors.Is(err, models.ErrAuthFailed) {
		return msgAPIError(err)
	}
	return msgUnexpectedError(err)
}

// Greeting returns the fixed first-contact greeting. Exposed for the API
// layer's health endpoint copy.
func Greeting() string {
	return greetingText
}
