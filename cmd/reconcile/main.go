package main

import (
	"context"
	"fmt"
	"os"

	"plantstore-be/internal/config"
	"plantstore-be/internal/db"
	"plantstore-be/internal/events"
	"plantstore-be/internal/logger"
	"plantstore-be/internal/mail"
	"plantstore-be/internal/notify"
	"plantstore-be/internal/order"
	"plantstore-be/internal/payment"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// backend is what the operator commands talk to.
type backend struct {
	payments   payment.Service
	reconciler payment.CallbackReconciler
	close      func()
}

type backendFactory func(ctx context.Context) (*backend, error)

func main() {
	if err := newRootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open backendFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reconcile",
		Short:         "Inspect and repair M-Pesa payments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(listCmd(open))
	rootCmd.AddCommand(retryCmd(open))
	rootCmd.AddCommand(queryCmd(open))
	rootCmd.AddCommand(hashPasswordCmd())

	return rootCmd
}

// connect builds the same services the server uses, with notifications sent inline.
func connect(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.AppEnv)

	database, err := db.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var (
		tokens payment.TokenCache = payment.NewMemoryTokenCache()
		rdb    *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		tokens = payment.NewRedisTokenCache(rdb)
	}

	gateway := payment.NewMpesaGateway(payment.MpesaConfig{
		BaseURL:        cfg.MpesaBaseURL(),
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		Shortcode:      cfg.MpesaShortcode,
		Passkey:        cfg.MpesaPasskey,
		CallbackURL:    cfg.MpesaCallbackEndpoint(),
		Timeout:        cfg.MpesaTimeout,
	}, tokens)

	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	notifier := notify.NewEmailNotifier(mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom), cfg.StoreName, cfg.AdminEmail)
	orders := order.NewService(order.NewRepository(database), nil)
	repo := payment.NewRepository(database)

	return &backend{
		payments: payment.NewService(repo, gateway, cfg.MpesaAccountRef),
		reconciler: payment.NewReconciler(repo, orders, notifier, publisher,
			payment.WithDispatch(func(f func()) { f() }),
		),
		close: func() {
			_ = publisher.Close()
			if rdb != nil {
				_ = rdb.Close()
			}
			_ = database.Close()
			logger.Sync()
		},
	}, nil
}

func withBackend(cmd *cobra.Command, open backendFactory, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := open(ctx)
	if err != nil {
		return err
	}
	if b.close != nil {
		defer b.close()
	}
	return fn(ctx, b)
}
