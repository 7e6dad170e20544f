// Command stepauthd serves the authentication API over HTTP. Configuration
// comes from the environment, optionally seeded from a .env file in the
// working directory.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	stepauth "github.com/patientprogress/stepauth"
	"github.com/patientprogress/stepauth/captcha"
	"github.com/patientprogress/stepauth/directory"
	"github.com/patientprogress/stepauth/httpapi"
	"github.com/patientprogress/stepauth/mailer"
)

type appConfig struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":4000"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret       string `env:"JWT_SECRET,required"`
	RecaptchaSecret string `env:"RECAPTCHA_SECRET,required"`

	SMTPHost     string `env:"SMTP_HOST,required"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"465"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM,required"`
	SMTPSSL      bool   `env:"SMTP_SSL" envDefault:"true"`

	ResetBaseURL string `env:"RESET_BASE_URL,required"`
	ProductName  string `env:"PRODUCT_NAME" envDefault:"PatientProgress"`
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal("stepauthd: loading .env: ", err)
	}

	var cfg appConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal("stepauthd: config: ", err)
	}

	if err := run(cfg); err != nil {
		log.Fatal("stepauthd: ", err)
	}
}

func run(cfg appConfig) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return err
	}

	verifier, err := captcha.New(captcha.Config{Secret: cfg.RecaptchaSecret})
	if err != nil {
		return err
	}

	smtp, err := mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		SSL:      cfg.SMTPSSL,
	})
	if err != nil {
		return err
	}

	engineConfig := stepauth.DefaultConfig()
	engineConfig.Token.Secret = []byte(cfg.JWTSecret)
	engineConfig.Mail.ResetBaseURL = cfg.ResetBaseURL
	engineConfig.Mail.ProductName = cfg.ProductName

	engine, err := stepauth.New().
		WithConfig(engineConfig).
		WithRedis(rdb).
		WithUserDirectory(directory.NewRedis(rdb)).
		WithBotVerifier(verifier).
		WithMailSender(smtp).
		WithAuditSink(stepauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewServer(engine).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Print("stepauthd: listening on " + cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
