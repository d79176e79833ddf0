package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/aera-procure/apollobot/internal/api"
	"github.com/aera-procure/apollobot/internal/connector"
	"github.com/aera-procure/apollobot/internal/genai"
	"github.com/aera-procure/apollobot/internal/ingram"
	"github.com/aera-procure/apollobot/internal/msgraph"
	"github.com/aera-procure/apollobot/internal/store"
	"github.com/aera-procure/apollobot/internal/util"
	"github.com/joho/godotenv"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Build module options
	ingramOpts := buildIngramOptions(flags)
	graphOpts := buildGraphOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	connectorOpts := buildConnectorOptions(flags)
	storeOpts := buildStoreOptions(flags)
	apiOpts := buildAPIOptions(flags)

	// Start the service
	slog.Info("Bootstrapping Apollobot with configured modules")
	slog.Debug("Module options counts", "ingram", len(ingramOpts), "msgraph", len(graphOpts), "genai", len(genaiOpts), "connector", len(connectorOpts), "store", len(storeOpts), "api", len(apiOpts))
	if err := api.Run(ingramOpts, graphOpts, genaiOpts, connectorOpts, storeOpts, apiOpts); err != nil {
		slog.Error("Apollobot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Apollobot exited successfully")
}

// Config holds environment configuration
type Config struct {
	IngramClientID     string
	IngramClientSecret string
	IngramHost         string
	IngramCustomer     string
	IngramCountry      string
	Synonyms           string
	OpenAIKey          string
	AzureTenantID      string
	AzureClientID      string
	AzureClientSecret  string
	SiteURL            string
	ExcelFilePath      string
	AppID              string
	AppPassword        string
	APIAddr            string
	DatabaseDSN        string
}

// Flags holds command line flag values
type Flags struct {
	ingramClientID     *string
	ingramClientSecret *string
	ingramHost         *string
	ingramCustomer     *string
	ingramCountry      *string
	synonyms           *string
	openaiKey          *string
	azureTenantID      *string
	azureClientID      *string
	azureClientSecret  *string
	siteURL            *string
	excelFilePath      *string
	appID              *string
	appPassword        *string
	apiAddr            *string
	dbDSN              *string
}

// initializeLogger sets up structured logging honoring $LOG_LEVEL and $LOG_SOURCE
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	addSource := util.ParseBoolEnv("LOG_SOURCE", false)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level, AddSource: addSource}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		IngramClientID:     os.Getenv("INGRAM_CLIENT_ID"),
		IngramClientSecret: os.Getenv("INGRAM_CLIENT_SECRET"),
		IngramHost:         os.Getenv("INGRAM_API_HOST"),
		IngramCustomer:     os.Getenv("INGRAM_CUSTOMER_NUMBER"),
		IngramCountry:      os.Getenv("INGRAM_COUNTRY_CODE"),
		Synonyms:           os.Getenv("PRODUCT_SYNONYMS"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		AzureTenantID:      os.Getenv("AZURE_TENANT_ID"),
		AzureClientID:      os.Getenv("AZURE_CLIENT_ID"),
		AzureClientSecret:  os.Getenv("AZURE_CLIENT_SECRET"),
		SiteURL:            os.Getenv("SHAREPOINT_SITE_URL"),
		ExcelFilePath:      os.Getenv("EXCEL_FILE_URL"),
		AppID:              os.Getenv("MICROSOFT_APP_ID"),
		AppPassword:        os.Getenv("MICROSOFT_APP_PASSWORD"),
		APIAddr:            util.FirstNonEmpty(os.Getenv("API_ADDR"), portToAddr(os.Getenv("PORT"))),
		DatabaseDSN:        util.FirstNonEmpty(os.Getenv("APOLLOBOT_DB_DSN"), os.Getenv("DATABASE_URL")),
	}

	slog.Debug("environment variables loaded",
		"INGRAM_CLIENT_ID_SET", config.IngramClientID != "",
		"INGRAM_API_HOST", config.IngramHost,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"AZURE_TENANT_ID_SET", config.AzureTenantID != "",
		"SHAREPOINT_SITE_URL", config.SiteURL,
		"MICROSOFT_APP_ID_SET", config.AppID != "",
		"API_ADDR", config.APIAddr,
		"DB_DSN_SET", config.DatabaseDSN != "")

	return config
}

// portToAddr converts a bare App Service style port to a listen address.
func portToAddr(port string) string {
	if port == "" {
		return ""
	}
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		ingramClientID:     flag.String("ingram-client-id", config.IngramClientID, "Ingram Micro client id (overrides $INGRAM_CLIENT_ID)"),
		ingramClientSecret: flag.String("ingram-client-secret", config.IngramClientSecret, "Ingram Micro client secret (overrides $INGRAM_CLIENT_SECRET)"),
		ingramHost:         flag.String("ingram-host", config.IngramHost, "Ingram Micro API base URL (overrides $INGRAM_API_HOST)"),
		ingramCustomer:     flag.String("ingram-customer", config.IngramCustomer, "IM-CustomerNumber header value (overrides $INGRAM_CUSTOMER_NUMBER)"),
		ingramCountry:      flag.String("ingram-country", config.IngramCountry, "IM-CountryCode header value (overrides $INGRAM_COUNTRY_CODE)"),
		synonyms:           flag.String("synonyms", config.Synonyms, "comma-separated from=to search term synonyms (overrides $PRODUCT_SYNONYMS)"),
		openaiKey:          flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		azureTenantID:      flag.String("azure-tenant-id", config.AzureTenantID, "Azure AD tenant id for Graph (overrides $AZURE_TENANT_ID)"),
		azureClientID:      flag.String("azure-client-id", config.AzureClientID, "Azure AD client id for Graph (overrides $AZURE_CLIENT_ID)"),
		azureClientSecret:  flag.String("azure-client-secret", config.AzureClientSecret, "Azure AD client secret for Graph (overrides $AZURE_CLIENT_SECRET)"),
		siteURL:            flag.String("sharepoint-site", config.SiteURL, "SharePoint site URL holding the workbook (overrides $SHAREPOINT_SITE_URL)"),
		excelFilePath:      flag.String("excel-file", config.ExcelFilePath, "drive-relative workbook path (overrides $EXCEL_FILE_URL)"),
		appID:              flag.String("app-id", config.AppID, "Bot Framework app id (overrides $MICROSOFT_APP_ID)"),
		appPassword:        flag.String("app-password", config.AppPassword, "Bot Framework app password (overrides $MICROSOFT_APP_PASSWORD)"),
		apiAddr:            flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR or $PORT)"),
		dbDSN:              flag.String("db-dsn", config.DatabaseDSN, "session store DSN, sqlite path or postgres URL (overrides $APOLLOBOT_DB_DSN or $DATABASE_URL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"ingramClientIDSet", *flags.ingramClientID != "",
		"ingramHost", *flags.ingramHost,
		"openaiKeySet", *flags.openaiKey != "",
		"azureTenantIDSet", *flags.azureTenantID != "",
		"siteURL", *flags.siteURL,
		"appIDSet", *flags.appID != "",
		"apiAddr", *flags.apiAddr,
		"dbDSNSet", *flags.dbDSN != "")

	return flags
}

// parseSynonyms parses a comma-separated from=to list. Malformed pairs are skipped.
func parseSynonyms(raw string) map[string]string {
	synonyms := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		from, to, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || from == "" || to == "" {
			continue
		}
		synonyms[from] = to
	}
	return synonyms
}

// buildIngramOptions constructs catalog client configuration options
func buildIngramOptions(flags Flags) []ingram.Option {
	var opts []ingram.Option
	if *flags.ingramClientID != "" || *flags.ingramClientSecret != "" {
		opts = append(opts, ingram.WithCredentials(*flags.ingramClientID, *flags.ingramClientSecret))
	}
	if *flags.ingramHost != "" {
		opts = append(opts, ingram.WithBaseURL(*flags.ingramHost))
	}
	if *flags.ingramCustomer != "" {
		opts = append(opts, ingram.WithCustomerNumber(*flags.ingramCustomer))
	}
	if *flags.ingramCountry != "" {
		opts = append(opts, ingram.WithCountryCode(*flags.ingramCountry))
	}
	if *flags.synonyms != "" {
		if synonyms := parseSynonyms(*flags.synonyms); len(synonyms) > 0 {
			opts = append(opts, ingram.WithSynonyms(synonyms))
		}
	}
	return opts
}

// buildGraphOptions constructs Microsoft Graph configuration options
func buildGraphOptions(flags Flags) []msgraph.Option {
	var opts []msgraph.Option
	if *flags.azureTenantID != "" {
		opts = append(opts, msgraph.WithCredentials(*flags.azureTenantID, *flags.azureClientID, *flags.azureClientSecret))
	}
	if *flags.siteURL != "" || *flags.excelFilePath != "" {
		opts = append(opts, msgraph.WithSite(*flags.siteURL, *flags.excelFilePath))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var opts []genai.Option
	if *flags.openaiKey != "" {
		opts = append(opts, genai.WithAPIKey(*flags.openaiKey))
	}
	return opts
}

// buildConnectorOptions constructs Bot Framework connector configuration options
func buildConnectorOptions(flags Flags) []connector.Option {
	var opts []connector.Option
	if *flags.appID != "" {
		opts = append(opts, connector.WithCredentials(*flags.appID, *flags.appPassword))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var opts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("buildStoreOptions: using PostgreSQL store", "dsn_set", true)
			opts = append(opts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("buildStoreOptions: using SQLite store", "path", *flags.dbDSN)
			opts = append(opts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	return opts
}
