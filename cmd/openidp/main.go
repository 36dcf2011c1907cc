package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/openidp/openidp/pkg/authcode"
	"github.com/openidp/openidp/pkg/consent"
	"github.com/openidp/openidp/pkg/identity"
	"github.com/openidp/openidp/pkg/jwks"
	"github.com/openidp/openidp/pkg/oauth2client"
	"github.com/openidp/openidp/pkg/oidc"
	"github.com/openidp/openidp/pkg/tokengenerator"
	"github.com/openidp/openidp/pkg/tokens"
	"github.com/openidp/openidp/pkg/wellknown"
)

type IdpDbConfig struct {
	Host     string `env:"IDP_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"IDP_PG_PORT" env-default:"5432"`
	Database string `env:"IDP_PG_DATABASE" env-default:"idp_db"`
	User     string `env:"IDP_PG_USER" env-default:"idp"`
	Password string `env:"IDP_PG_PASSWORD" env-default:"pwd"`
}

func (d IdpDbConfig) toDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

type IdpConfig struct {
	Issuer         string `env:"IDP_ISSUER" env-default:"http://localhost:4000"`
	Persistence    string `env:"IDP_PERSISTENCE" env-default:"memory"`
	SessionSecret  string `env:"IDP_SESSION_SECRET" env-default:"dev-session-secret-change-in-production"`
	SigningKeyFile string `env:"IDP_SIGNING_KEY_FILE" env-default:""`
	SeedDemoData   bool   `env:"IDP_SEED_DEMO_DATA" env-default:"true"`
}

type Config struct {
	IdpDbConfig IdpDbConfig
	IdpConfig   IdpConfig
	AppConfig   app.AppConfig
}

// repositories groups the storage backends selected by IDP_PERSISTENCE.
type repositories struct {
	clients  oauth2client.ClientRepository
	codes    authcode.CodeRepository
	consents consent.ConsentRepository
	tokens   tokens.TokenRepository
	users    identity.UserRepository
}

func main() {
	config := Config{}
	cleanenv.ReadEnv(&config)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	ctx := context.Background()

	repos, err := buildRepositories(ctx, config)
	if err != nil {
		slog.Error("Failed initializing storage", "persistence", config.IdpConfig.Persistence, "err", err)
		os.Exit(-1)
	}

	keys, err := buildKeyService(config.IdpConfig.SigningKeyFile)
	if err != nil {
		slog.Error("Failed initializing signing keys", "err", err)
		os.Exit(-1)
	}
	signingKey, err := keys.GetActiveSigningKey()
	if err != nil {
		slog.Error("No active signing key", "err", err)
		os.Exit(-1)
	}
	generator := tokengenerator.NewRSATokenGenerator(
		signingKey.PrivateKey, signingKey.Kid, config.IdpConfig.Issuer, config.IdpConfig.Issuer)

	clientService := oauth2client.NewClientService(repos.clients)
	codeService := authcode.NewCodeService(repos.codes)
	consentService := consent.NewConsentService(repos.consents)
	userService := identity.NewUserService(repos.users)
	issuer := tokens.NewIssuer(generator, repos.tokens, repos.users)
	authorizeService := oidc.NewAuthorizeService(clientService, codeService, consentService)

	sessionAuth := jwtauth.New("HS256", []byte(config.IdpConfig.SessionSecret), nil)
	oidcHandle := oidc.NewHandle(authorizeService, clientService, codeService, issuer, userService, sessionAuth)
	wellknownHandler := wellknown.NewHandler(wellknown.Config{Issuer: config.IdpConfig.Issuer}, keys)

	oidcHandle.Routes(server.R)
	wellknownHandler.Routes(server.R)

	if config.IdpConfig.SeedDemoData {
		seedDemoData(ctx, userService, clientService)
	}

	go cleanupExpiredCodes(ctx, codeService)

	slog.Info("Starting OpenID provider", "issuer", config.IdpConfig.Issuer,
		"persistence", config.IdpConfig.Persistence, "kid", signingKey.Kid)
	server.Run()
}

func buildRepositories(ctx context.Context, config Config) (*repositories, error) {
	if config.IdpConfig.Persistence != "postgres" {
		return &repositories{
			clients:  oauth2client.NewInMemoryClientRepository(),
			codes:    authcode.NewInMemoryCodeRepository(),
			consents: consent.NewInMemoryConsentRepository(),
			tokens:   tokens.NewInMemoryTokenRepository(),
			users:    identity.NewInMemoryUserRepository(),
		}, nil
	}

	dbConfig := config.IdpDbConfig.toDbConfig()
	pool, err := dbutils.NewDbPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host,
			"port", dbConfig.Port, "user", dbConfig.User)
		return nil, err
	}
	if err := applySchemas(ctx, pool); err != nil {
		return nil, err
	}

	clientRepo, err := oauth2client.NewPostgresClientRepository(pool)
	if err != nil {
		return nil, err
	}
	codeRepo, err := authcode.NewPostgresCodeRepository(pool)
	if err != nil {
		return nil, err
	}
	consentRepo, err := consent.NewPostgresConsentRepository(pool)
	if err != nil {
		return nil, err
	}
	tokenRepo, err := tokens.NewPostgresTokenRepository(pool)
	if err != nil {
		return nil, err
	}
	userRepo, err := identity.NewPostgresUserRepository(pool)
	if err != nil {
		return nil, err
	}

	return &repositories{
		clients:  clientRepo,
		codes:    codeRepo,
		consents: consentRepo,
		tokens:   tokenRepo,
		users:    userRepo,
	}, nil
}

func applySchemas(ctx context.Context, pool *pgxpool.Pool) error {
	schemas := []string{
		oauth2client.Schema,
		authcode.Schema,
		consent.Schema,
		tokens.Schema,
		identity.Schema,
	}
	for _, schema := range schemas {
		if _, err := pool.Exec(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

func buildKeyService(keyFile string) (*jwks.JWKSService, error) {
	if keyFile == "" {
		slog.Info("No signing key configured, generating an ephemeral RSA key")
		return jwks.NewJWKSService()
	}

	pemData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	privateKey, err := jwks.DecodePrivateKeyFromPEM(string(pemData))
	if err != nil {
		return nil, err
	}
	return jwks.NewJWKSServiceWithKey(&jwks.KeyPair{
		Kid:        uuid.NewString(),
		Alg:        "RS256",
		PrivateKey: privateKey,
		CreatedAt:  time.Now().UTC(),
		Active:     true,
	})
}

func seedDemoData(ctx context.Context, users *identity.UserService, clients *oauth2client.ClientService) {
	user, err := users.CreateUser(ctx, identity.CreateUserParams{
		Username:      "demo",
		Password:      "password",
		Name:          "Demo User",
		Email:         "demo@example.com",
		EmailVerified: true,
	})
	if err != nil {
		slog.Warn("Skipping demo user seed", "err", err)
		return
	}

	reg, err := clients.Register(ctx, oauth2client.RegisterParams{
		ClientName:   "Demo Web App",
		RedirectURIs: []string{"http://localhost:8080/callback"},
		Scopes:       []string{"openid", "profile", "email"},
	})
	if err != nil {
		slog.Warn("Skipping demo client seed", "err", err)
		return
	}

	slog.Info("Seeded demo data",
		"username", user.Username,
		"password", "password",
		"client_id", reg.Client.ClientID,
		"client_secret", reg.ClientSecret,
		"redirect_uri", "http://localhost:8080/callback")
}

func cleanupExpiredCodes(ctx context.Context, codes *authcode.CodeService) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := codes.CleanupExpired(ctx); err != nil {
				slog.Error("Failed cleaning up expired authorization codes", "err", err)
			}
		}
	}
}
