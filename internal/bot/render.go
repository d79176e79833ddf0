package bot

import (
	"fmt"
	"strings"

	"github.com/aera-procure/apollobot/internal/models"
)

// Fixed user-facing strings. Wording is part of the bot's contract; tests
// assert these verbatim.
const (
	msgNoActiveSearch   = "No active search. Please start a new search."
	msgAlreadyFirstPage = "You are already on the first page."
	msgExcelUnavailable = "Sorry, I couldn't access the Excel data. Please try again later."

	greetingText = "Hello! I'm Apollobot.  \n" +
		"I am here to help you search for products in Ingram Micro, and the Aera Procure database, or just reply on generic questions about computer software and hardware.  \n" +
		"Just type '**search for product**' followed by your search term for Ingram Micro database search,  \n" +
		"or '**search for available**' followed by your search term for Ingram Micro database available products,  \n" +
		"'**excel search for**' followed by your search term for Aera Procure file search,  \n" +
		"or ask me anything!"

	helpText = "I'm not sure how to respond to that. Here are some things you can try:" +
		"\n- Search for products: 'search for product [product name]'" +
		"\n- Search for available products: 'search for available [product name]'" +
		"\n- Get price and availability: 'price and availability for [part number]'" +
		"\n- Navigate search results: 'next' or 'previous'" +
		"\n- Or you can ask me general questions about computer hardware!"
)

func msgNoSearchResults(page int) string {
	return fmt.Sprintf("No products found matching your search term on page %d.", page)
}

func msgNoFilteredResults(page int) string {
	return fmt.Sprintf("No products found matching your criteria on page %d.", page)
}

func msgLoadingPage(page int, term string) string {
	return fmt.Sprintf("Loading page %d for: %s", page, term)
}

func msgLookupNotFound(partNumber string) string {
	return fmt.Sprintf("**No price and availability information found for part number %s**.", partNumber)
}

func msgExcelNoResults(term string) string {
	return fmt.Sprintf("No products found matching '%s' in the Excel file.", term)
}

func msgExcelResults(term, formatted string) string {
	return fmt.Sprintf("Search results for '%s':\n\n%s", term, formatted)
}

func msgAPIError(err error) string {
	return fmt.Sprintf("An API error occurred: %s", err)
}

func msgUnexpectedError(err error) string {
	return fmt.Sprintf("An unexpected error occurred: %s", err)
}

func msgQuestionError(err error) string {
	return fmt.Sprintf("An error occurred while processing your question: %s", err)
}

// renderOffers renders one page of search results with pagination hints.
func renderOffers(term string, page int, offers []models.ProductOffer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page %d results for '%s':\n\n", page, term)
	for _, offer := range offers {
		fmt.Fprintf(&b, "**Name**: %s  \n", offer.Item.Description)
		fmt.Fprintf(&b, "**Part Number**: %s  \n", offer.Item.IngramPartNumber)
		fmt.Fprintf(&b, "**Vendor**: %s  \n", offer.Item.VendorName)
		fmt.Fprintf(&b, "**Category**: %s  \n", offer.Item.Category)
		fmt.Fprintf(&b, "**Sub-Category**: %s  \n", offer.Item.SubCategory)
		fmt.Fprintf(&b, "**Product Type**: %s  \n", offer.Item.ProductType)
		fmt.Fprintf(&b, "**UPC Code**: %s  \n", offer.Item.UPCCode)
		fmt.Fprintf(&b, "**Availability**: %s  \n", availabilityLabel(offer.Info.Availability))
		if offer.Info.Availability != nil {
			fmt.Fprintf(&b, "**Total Availability**: %d  \n", offer.Info.Availability.TotalAvailability)
		}
		b.WriteString("  \n")
	}
	fmt.Fprintf(&b, "\nPage %d. ", page)
	b.WriteString("To view the next page of results, type 'next'.  \n")
	b.WriteString("To view the previous page of results, type 'previous'.  \n")
	b.WriteString("To see price and availability details for a specific product, type 'price and availability for [part number]'.")
	return b.String()
}

// renderLookup renders a single part's price and availability details.
func renderLookup(entry *models.PriceAndAvailabilityEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Name**: %s  \n", orNA(entry.Description))
	fmt.Fprintf(&b, "**Ingram Part Number**: %s  \n", entry.IngramPartNumber)
	fmt.Fprintf(&b, "**Vendor Part Number**: %s  \n", orNA(entry.VendorPartNumber))

	if entry.Availability != nil {
		fmt.Fprintf(&b, "**Availability**: %s  \n", availabilityLabel(entry.Availability))
		fmt.Fprintf(&b, "**Total Availability**: %d  \n", entry.Availability.TotalAvailability)

		var stocked []string
		for _, wh := range entry.Availability.AvailabilityByWarehouse {
			if wh.QuantityAvailable > 0 {
				stocked = append(stocked, fmt.Sprintf("**Warehouse**: %s, **Quantity Available**: %d", orNA(wh.Location), wh.QuantityAvailable))
			}
		}
		if len(stocked) > 0 {
			b.WriteString("**Availability by Warehouse**:  \n" + strings.Join(stocked, "  \n") + "  \n")
		} else {
			b.WriteString("**No warehouses with available stock**.  \n")
		}
	}

	if entry.Pricing != nil {
		fmt.Fprintf(&b, "**Pricing (Currency %s)**:  \n", orNA(entry.Pricing.CurrencyCode))
		if entry.Pricing.RetailPrice != nil {
			fmt.Fprintf(&b, "**Retail Price**: $%.2f  \n", *entry.Pricing.RetailPrice)
		} else {
			b.WriteString("Retail Price: N/A  \n")
		}
		if entry.Pricing.CustomerPrice != nil {
			fmt.Fprintf(&b, "**Customer Price**: $%.2f  \n", *entry.Pricing.CustomerPrice)
		} else {
			b.WriteString("Customer Price: N/A  \n")
		}
	}
	return b.String()
}

func availabilityLabel(a *models.AvailabilityInfo) string {
	if a.Available() {
		return "Available"
	}
	return "Not Available"
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
