package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"helpmarq/client/internal/api"
	"helpmarq/client/internal/config"
	"helpmarq/client/internal/notify"
	"helpmarq/client/internal/respcache"
	"helpmarq/client/internal/role"
	"helpmarq/client/internal/session"
	"helpmarq/client/internal/state"
	"helpmarq/client/internal/xp"
)

const usage = `usage: helpmarq <command> [args]

commands:
  signup -email E -password P -name N   create an account
  signin -email E -password P           sign in
  signout                               sign out and clear local state
  whoami                                show the current session
  role                                  resolve the current role
  select-role -role R [-reviewer ID]    record an explicit role choice
  projects                              list marketplace projects
  notifications                         show notifications and badge
  profile -reviewer ID                  show a reviewer's XP and level
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logLevel := zerolog.WarnLevel
	if os.Getenv("HELPMARQ_DEBUG") != "" {
		logLevel = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(logLevel).With().Timestamp().Logger()

	cfg := config.Load()
	ctx := context.Background()

	durable, cleanup, err := openDurable(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open durable state store")
	}
	defer cleanup()

	ephemeral := state.NewMem()
	cache := respcache.New(cfg.CacheTTL, cfg.CacheMaxEntries)
	client := api.New(api.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
		Cache:   cache,
		Logger:  log,
	})
	sessions := session.NewManager(client, durable, ephemeral, log)
	resolver := role.NewResolver(client, durable, ephemeral, cfg.RoleTimeout, log)

	if err := run(ctx, os.Args[1], os.Args[2:], client, sessions, resolver); err != nil {
		fmt.Fprintf(os.Stderr, "helpmarq: %v\n", err)
		os.Exit(1)
	}
}

// openDurable picks the durable store: Redis when configured, otherwise the
// local state file.
func openDurable(cfg config.Config) (state.Store, func(), error) {
	if cfg.RedisURL != "" {
		store, err := state.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	store, err := state.NewFile(cfg.StateFile, cfg.StatePassphrase)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func run(ctx context.Context, command string, args []string, client *api.Client, sessions *session.Manager, resolver *role.Resolver) error {
	switch command {
	case "signup":
		fs := flag.NewFlagSet("signup", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		name := fs.String("name", "", "display name")
		fs.Parse(args)
		s, err := sessions.SignUp(ctx, *email, *password, *name)
		if err != nil {
			return err
		}
		fmt.Printf("signed up as %s (%s)\n", s.User.Name, s.User.Email)
		return nil

	case "signin":
		fs := flag.NewFlagSet("signin", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		fs.Parse(args)
		s, err := sessions.SignIn(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s (%s)\n", s.User.Name, s.User.Email)
		return nil

	case "signout":
		sessions.SignOut(ctx)
		fmt.Println("signed out")
		return nil

	case "whoami":
		user := sessions.CurrentUser(ctx)
		if user == nil {
			fmt.Println("not signed in")
			return nil
		}
		fmt.Printf("%s <%s> (id %s)\n", user.Name, user.Email, user.ID)
		return nil

	case "role":
		resolution, err := resolver.Resolve(ctx)
		if errors.Is(err, role.ErrSelectionRequired) {
			fmt.Println("no role chosen yet: run select-role")
			return nil
		}
		if err != nil {
			return err
		}
		if resolution.Role == role.Reviewer {
			fmt.Printf("reviewer (reviewer id %s)\n", resolution.ReviewerID)
		} else {
			fmt.Println(resolution.Role)
		}
		return nil

	case "select-role":
		fs := flag.NewFlagSet("select-role", flag.ExitOnError)
		chosen := fs.String("role", "", "owner or reviewer")
		reviewerID := fs.String("reviewer", "", "reviewer id (required for reviewer)")
		fs.Parse(args)
		if err := resolver.SelectRole(ctx, role.Role(*chosen), *reviewerID); err != nil {
			return err
		}
		fmt.Printf("role set to %s\n", *chosen)
		return nil

	case "projects":
		projects, err := client.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("no projects")
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s  %-30s  %s  %s\n", p.ID, p.Title, p.Status, p.CreatedAt.Format(time.DateOnly))
		}
		return nil

	case "notifications":
		items, err := client.ListNotifications(ctx)
		if err != nil {
			return err
		}
		unread := notify.UnreadCount(items)
		if badge := notify.Badge(unread); badge != "" {
			fmt.Printf("unread: %s\n", badge)
		}
		for _, item := range items {
			marker := " "
			if !item.Read {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, item.Message)
		}
		return nil

	case "profile":
		fs := flag.NewFlagSet("profile", flag.ExitOnError)
		reviewerID := fs.String("reviewer", "", "reviewer id")
		fs.Parse(args)
		profile, err := client.GetReviewerProfile(ctx, *reviewerID)
		if err != nil {
			return err
		}
		level, into, needed := xp.Progress(profile.XP)
		fmt.Printf("reviewer %s: %d XP, level %d (+%d, %d to next)\n",
			profile.ReviewerID, profile.XP, level, into, needed)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}
