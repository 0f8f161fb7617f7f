package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/escrow-api/internal/auth"
	"github.com/ksred/escrow-api/internal/config"
	"github.com/ksred/escrow-api/internal/database"
	"github.com/ksred/escrow-api/internal/exchange"
	"github.com/ksred/escrow-api/internal/intent"
	"github.com/ksred/escrow-api/internal/ledger"
	"github.com/ksred/escrow-api/internal/oracle"
	"github.com/ksred/escrow-api/internal/settlement"
	"github.com/ksred/escrow-api/internal/types"
	"github.com/ksred/escrow-api/pkg/middleware"
)

const (
	serverAddress = "http://localhost:8081"
	serverPort    = ":8081"

	sellAsset = "TOKA"
	buyAsset  = "TOKB"

	creatorAccount  = "alice"
	executorAccount = "bob"
	adminAccount    = "admin"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean and median durations for the route
func (rs *routeStats) calculate() (min, max, mean, median time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]
	return min, max, mean, median
}

// simulationClient drives the API over HTTP and records per-route stats
type simulationClient struct {
	client *http.Client
	tokens map[string]string // account -> JWT
	stats  map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		client: &http.Client{Timeout: 10 * time.Second},
		tokens: make(map[string]string),
		stats:  make(map[string]*routeStats),
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one HTTP request as the given account, recording timing
// stats under route. out may be nil when the response body is not needed.
func (sc *simulationClient) call(route, method, path, account string, body interface{}, out interface{}) error {
	stats, ok := sc.stats[route]
	if !ok {
		stats = &routeStats{name: route}
		sc.stats[route] = stats
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, serverAddress+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	if account != "" {
		req.Header.Set("Authorization", "Bearer "+sc.tokens[account])
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	stats.addDuration(time.Since(start))
	if err != nil {
		stats.failures++
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		stats.failures++
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		stats.failures++
		return fmt.Errorf("%s: bad response %s", route, raw)
	}
	if !envelope.Success {
		stats.failures++
		if envelope.Error != nil {
			return fmt.Errorf("%s: %s (%s)", route, envelope.Error.Message, envelope.Error.Code)
		}
		return fmt.Errorf("%s: request failed with status %d", route, resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// authenticate obtains a JWT for an account's API key pair
func (sc *simulationClient) authenticate(account string) error {
	var token auth.TokenResponse
	err := sc.call("auth", http.MethodPost, "/api/v1/auth/token", "", auth.Credentials{
		APIKey:    account + "-api-key",
		APISecret: account + "-api-secret",
	}, &token)
	if err != nil {
		return err
	}
	sc.tokens[account] = token.Token
	return nil
}

func (sc *simulationClient) printPerformanceStats() {
	names := make([]string, 0, len(sc.stats))
	for name := range sc.stats {
		names = append(names, name)
	}
	sort.Strings(names)

	log.Info().Msg("=== Route performance ===")
	for _, name := range names {
		rs := sc.stats[name]
		min, max, mean, median := rs.calculate()
		log.Info().
			Str("route", name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("median", median).
			Msg("route stats")
	}
}

func main() {
	gin.SetMode(gin.ReleaseMode)

	dbPath := fmt.Sprintf("simulation-%d.db", time.Now().Unix())
	defer os.Remove(dbPath)

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	// Services share the simulation database
	configService := config.NewService(db)
	if err := configService.Bootstrap(adminAccount, "venue:primary", "oracle:feed"); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap configuration")
	}

	authService := auth.NewService(auth.Secret())
	for _, account := range []string{creatorAccount, executorAccount, adminAccount} {
		authService.RegisterAccount(account, account+"-api-key", account+"-api-secret")
	}

	ledgerService := ledger.NewService(db)
	intentService := intent.NewService(db, configService)

	priceFeed := oracle.NewFeed(7)
	venue := exchange.NewVenue(priceFeed, ledgerService.GetDB())
	settlementService := settlement.NewService(db, priceFeed, venue)

	// Seed the token ledger. The creator owns sell-asset, the executor
	// owns buy-asset, the venue carries inventory on both sides.
	tokens := ledgerService.GetDB()
	mustMint(tokens, creatorAccount, sellAsset, 10_000)
	mustMint(tokens, executorAccount, buyAsset, 5_000)
	mustMint(tokens, venue.Account, sellAsset, 1_000_000)
	mustMint(tokens, venue.Account, buyAsset, 1_000_000)

	go startServer(authService, configService, ledgerService, intentService, settlementService, priceFeed)
	time.Sleep(250 * time.Millisecond)

	sc := newSimulationClient()
	if err := runScenario(sc, venue); err != nil {
		sc.printPerformanceStats()
		log.Fatal().Err(err).Msg("simulation failed")
	}
	sc.printPerformanceStats()
	log.Info().Msg("simulation completed successfully")
}

func mustMint(tokens *ledger.Database, holder, asset string, amount int64) {
	if err := tokens.Mint(holder, asset, types.NewAmount(amount)); err != nil {
		log.Fatal().Err(err).Str("holder", holder).Msg("mint failed")
	}
}

// runScenario walks the full escrow lifecycle over the API
func runScenario(sc *simulationClient, venue *exchange.Venue) error {
	for _, account := range []string{creatorAccount, executorAccount, adminAccount} {
		if err := sc.authenticate(account); err != nil {
			return err
		}
	}
	log.Info().Msg("accounts authenticated")

	// Admin publishes oracle prices: TOKA at 1.2, TOKB at 0.8 in base
	// currency, so TOKA/TOKB crosses at 1.5 (15,000,000 scaled)
	now := time.Now().Unix()
	for i := int64(5); i >= 0; i-- {
		if err := sc.call("publish_price", http.MethodPost, "/api/v1/admin/prices", adminAccount, gin.H{
			"asset": sellAsset, "price": "12000000", "timestamp": now - i*60,
		}, nil); err != nil {
			return err
		}
		if err := sc.call("publish_price", http.MethodPost, "/api/v1/admin/prices", adminAccount, gin.H{
			"asset": buyAsset, "price": "8000000", "timestamp": now - i*60,
		}, nil); err != nil {
			return err
		}
	}
	log.Info().Msg("oracle prices published")

	// Creator deposits sell-asset into escrow
	if err := sc.call("deposit", http.MethodPost, "/api/v1/balances/deposit", creatorAccount, gin.H{
		"asset": sellAsset, "amount": "1000",
	}, nil); err != nil {
		return err
	}

	// Creator posts the limit order: sell 100 TOKA at a target of 1.4,
	// below the current cross of 1.5, with a 5 TOKA executor incentive
	var created types.Intent
	if err := sc.call("create_intent", http.MethodPost, "/api/v1/intents", creatorAccount, gin.H{
		"sell_asset":     sellAsset,
		"sell_amount":    "100",
		"buy_asset":      buyAsset,
		"min_buy_amount": "140",
		"target_price":   "14000000",
		"incentive":      "5",
		"expiry":         time.Now().Add(24 * time.Hour).Unix(),
	}, &created); err != nil {
		return err
	}
	log.Info().Uint64("intent_id", created.IntentID).Msg("intent created")

	// Executor probes executability and the venue quote
	var executable settlement.ExecutabilityResponse
	path := fmt.Sprintf("/api/v1/intents/%d/executable", created.IntentID)
	if err := sc.call("check_executable", http.MethodGet, path, "", nil, &executable); err != nil {
		return err
	}
	if !executable.Executable {
		return fmt.Errorf("intent %d not executable at current prices", created.IntentID)
	}
	log.Info().
		Str("current_price", executable.CurrentPrice.String()).
		Str("estimated_buy", executable.EstimatedBuyAmount.String()).
		Msg("intent is executable")

	var quote settlement.QuoteResponse
	quotePath := fmt.Sprintf("/api/v1/prices/quote?sell_asset=%s&buy_asset=%s&sell_amount=100", sellAsset, buyAsset)
	if err := sc.call("quote", http.MethodGet, quotePath, "", nil, &quote); err != nil {
		return err
	}
	log.Info().Str("expected_output", quote.ExpectedOutput.String()).Msg("venue quote")

	// Executor settles the intent, delivering 150 TOKB
	var executed types.Intent
	execPath := fmt.Sprintf("/api/v1/intents/%d/execute", created.IntentID)
	if err := sc.call("execute_intent", http.MethodPost, execPath, executorAccount, gin.H{
		"buy_amount": "150",
	}, &executed); err != nil {
		return err
	}
	log.Info().
		Str("status", executed.Status).
		Str("executor", executed.Executor).
		Msg("intent executed")

	// Executor restocks buy-asset by swapping the received TOKA at the venue
	received := executed.SellAmount.Add(executed.Incentive)
	if _, err := venue.Swap(received, types.NewAmount(0), []string{sellAsset, buyAsset}, executorAccount, time.Now().Add(time.Minute).Unix()); err != nil {
		return fmt.Errorf("venue swap: %w", err)
	}
	log.Info().Str("amount_in", received.String()).Msg("executor restocked via venue swap")

	// Creator withdraws the delivered buy-asset... the buy side went
	// straight to the creator's token holdings, so only the remaining
	// escrow balance comes out here
	if err := sc.call("withdraw", http.MethodPost, "/api/v1/balances/withdraw", creatorAccount, gin.H{
		"asset": sellAsset, "amount": "900",
	}, nil); err != nil {
		return err
	}

	var balance types.Balance
	balancePath := fmt.Sprintf("/api/v1/balances/%s/%s", creatorAccount, sellAsset)
	if err := sc.call("get_balance", http.MethodGet, balancePath, "", nil, &balance); err != nil {
		return err
	}
	log.Info().
		Str("available", balance.Available.String()).
		Str("locked", balance.Locked.String()).
		Msg("creator escrow balance after withdrawal")

	return nil
}

// startServer runs the API server for the simulation on its own port
func startServer(
	authService *auth.Service,
	configService *config.Service,
	ledgerService *ledger.Service,
	intentService *intent.Service,
	settlementService *settlement.Service,
	priceFeed *oracle.Feed,
) {
	router := gin.New()
	router.Use(gin.Recovery())

	authHandlers := auth.NewGinHandlers(authService)
	configHandlers := config.NewGinHandlers(configService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	intentHandlers := intent.NewGinHandlers(intentService)
	settlementHandlers := settlement.NewGinHandlers(settlementService)
	oracleHandlers := oracle.NewGinHandlers(priceFeed, priceFeed, configService.RequireAdmin)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", authHandlers.GenerateTokenHandler())

		v1.GET("/balances/:user/:asset", ledgerHandlers.GetBalanceHandler())
		v1.GET("/intents/:intent_id", intentHandlers.GetIntentHandler())
		v1.GET("/intents/:intent_id/executable", settlementHandlers.CheckExecutableHandler())
		v1.GET("/users/:user/intents", intentHandlers.GetUserIntentsHandler())
		v1.GET("/prices", oracleHandlers.GetAssetsHandler())
		v1.GET("/prices/quote", settlementHandlers.QuoteHandler())
		v1.GET("/prices/cross", oracleHandlers.GetCrossRateHandler())
		v1.GET("/prices/:asset", oracleHandlers.GetPriceHandler())
		v1.GET("/prices/:asset/twap", oracleHandlers.GetTWAPHandler())

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth())
		{
			protected.POST("/balances/deposit", ledgerHandlers.DepositHandler())
			protected.POST("/balances/withdraw", ledgerHandlers.WithdrawHandler())
			protected.POST("/intents", intentHandlers.CreateIntentHandler())
			protected.POST("/intents/:intent_id/cancel", intentHandlers.CancelIntentHandler())
			protected.POST("/intents/:intent_id/execute", settlementHandlers.ExecuteIntentHandler())
			protected.POST("/admin/intents/:intent_id/cancel", intentHandlers.AdminCancelIntentHandler())
			protected.PUT("/admin/config/router", configHandlers.SetRouterHandler())
			protected.PUT("/admin/config/oracle", configHandlers.SetOracleHandler())
			protected.POST("/admin/prices", oracleHandlers.PublishPriceHandler())
		}
	}

	if err := router.Run(serverPort); err != nil {
		log.Fatal().Err(err).Msg("simulation server exited")
	}
}
