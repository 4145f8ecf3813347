// metaapi-health connects to the MetaApi websocket gateway, subscribes an
// account and periodically prints its connection health and weekly uptime.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agiliumtrade-ai/metaapi-go/metaapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metaapi-health",
		Short: "Watch connection health of a MetaApi account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run()
		},
	}

	flags := cmd.Flags()
	flags.String("token", "", "MetaApi auth token")
	flags.String("account-id", "", "account id to monitor")
	flags.String("domain", "agiliumtrade.agiliumtrade.ai", "MetaApi domain")
	flags.String("application", "MetaApi", "application id stamped on requests")
	flags.StringSlice("symbols", nil, "symbols to subscribe to market data for")
	flags.Duration("interval", 10*time.Second, "how often to print the health snapshot")
	flags.Bool("verbose", false, "log client internals")

	viper.SetEnvPrefix("METAAPI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(flags))

	return cmd
}

func run() error {
	token := viper.GetString("token")
	accountID := viper.GetString("account-id")
	if token == "" || accountID == "" {
		return fmt.Errorf("both --token and --account-id are required")
	}

	zl, err := zap.NewProduction()
	if viper.GetBool("verbose") {
		zl, err = zap.NewDevelopment()
	}
	if err != nil {
		return err
	}
	defer zl.Sync() //nolint:errcheck
	sugar := zl.Sugar()

	client, err := metaapi.NewClient(token,
		metaapi.WithDomain(viper.GetString("domain")),
		metaapi.WithApplication(viper.GetString("application")),
		metaapi.WithLogger(metaapi.ZapLogger(sugar)),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	state := newTerminalState()
	monitor := metaapi.NewHealthMonitor(state, metaapi.ZapLogger(sugar))
	client.AddSynchronizationListener(accountID, state.listener())
	client.AddSynchronizationListener(accountID, monitor.Listener())
	client.AddReconnectListener(func() {
		sugar.Infow("reconnected, subscribing again", "accountId", accountID)
		client.Subscribe(accountID)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	monitor.Start()
	defer monitor.Stop()

	client.Subscribe(accountID)
	for _, symbol := range viper.GetStringSlice("symbols") {
		if err := client.SubscribeToMarketData(ctx, accountID, symbol); err != nil {
			sugar.Warnw("market data subscription failed", "symbol", symbol, "error", err)
		}
	}

	ticker := time.NewTicker(viper.GetDuration("interval"))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status := monitor.HealthStatus()
			fmt.Printf("%s | healthy=%t uptime=%.2f%% | %s\n",
				time.Now().Format(time.RFC3339), status.Healthy, monitor.Uptime(), status.Message)
		}
	}
}

// terminalState is a minimal local mirror of terminal state fed by the
// synchronization stream.
type terminalState struct {
	mu                sync.Mutex
	connected         bool
	connectedToBroker bool
	synchronized      bool
	symbols           map[string]struct{}
	specifications    map[string]metaapi.SymbolSpecification
}

var _ metaapi.TerminalState = (*terminalState)(nil)

func newTerminalState() *terminalState {
	return &terminalState{
		symbols:        map[string]struct{}{},
		specifications: map[string]metaapi.SymbolSpecification{},
	}
}

func (s *terminalState) listener() *metaapi.SynchronizationListener {
	return &metaapi.SynchronizationListener{
		OnConnected: func() {
			s.mu.Lock()
			s.connected = true
			s.mu.Unlock()
		},
		OnDisconnected: func() {
			s.mu.Lock()
			s.connected = false
			s.connectedToBroker = false
			s.synchronized = false
			s.mu.Unlock()
		},
		OnBrokerConnectionStatusChanged: func(connected bool) {
			s.mu.Lock()
			s.connectedToBroker = connected
			s.mu.Unlock()
		},
		OnSynchronizationStarted: func() {
			s.mu.Lock()
			s.synchronized = false
			s.mu.Unlock()
		},
		OnDealSynchronizationFinished: func(string) {
			s.mu.Lock()
			s.synchronized = true
			s.mu.Unlock()
		},
		OnSymbolSpecificationUpdated: func(spec metaapi.SymbolSpecification) {
			s.mu.Lock()
			s.specifications[spec.Symbol] = spec
			s.mu.Unlock()
		},
		OnSymbolPriceUpdated: func(price metaapi.SymbolPrice) {
			s.mu.Lock()
			s.symbols[price.Symbol] = struct{}{}
			s.mu.Unlock()
		},
	}
}

func (s *terminalState) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *terminalState) ConnectedToBroker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedToBroker
}

func (s *terminalState) Synchronized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synchronized
}

func (s *terminalState) SubscribedSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbols := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (s *terminalState) Specification(symbol string) (metaapi.SymbolSpecification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specifications[symbol]
	return spec, ok
}
