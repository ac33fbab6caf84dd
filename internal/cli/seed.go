package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coremodel/coremodel/internal/app"
	"github.com/coremodel/coremodel/internal/model"
	"github.com/coremodel/coremodel/internal/service"
)

type seedOptions struct {
	email   string
	name    string
	role    string
	title   string
	content string
	migrate bool
	asJSON  bool
}

type seedOutput struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	UserCreated bool   `json:"user_created"`
	EntityID    string `json:"entity_id,omitempty"`
}

func newSeedCommand() *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Ensure a user exists and optionally give it a core entity",
		Long: `Ensure a user with the given email exists, creating it when missing.
When --title is set a core entity owned by that user is created as well.
Running the command twice with the same email reuses the existing user.`,
		Example: `  datactl seed --email admin@example.com --name Admin --role Admin
  datactl seed --email ada@example.com --name Ada --title "First note" --content "hello" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.email, "email", "", "user email (required)")
	f.StringVar(&opts.name, "name", "", "user name, used when the user is created")
	f.StringVar(&opts.role, "role", "", `user role (default "`+model.DefaultRole+`")`)
	f.StringVar(&opts.title, "title", "", "title of a core entity to create for the user")
	f.StringVar(&opts.content, "content", "", "content of the core entity")
	f.BoolVar(&opts.migrate, "migrate", false, "apply migrations before seeding")
	f.BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runSeed(cmd *cobra.Command, opts *seedOptions) error {
	cfg := getConfig(cmd)
	if opts.migrate {
		cfg.MigrateOnStart = true
	}
	if opts.title != "" && strings.TrimSpace(opts.content) == "" {
		return errors.New("--content is required with --title")
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, newLogger(cmd, cfg))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	user, created, err := ensureUser(ctx, a.Users, opts)
	if err != nil {
		return err
	}

	out := seedOutput{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		UserCreated: created,
	}

	if opts.title != "" {
		entity, err := a.Entities.CreateEntity(ctx, service.CreateEntityInput{
			Title:   opts.title,
			Content: opts.content,
			OwnerID: user.ID,
		})
		if err != nil {
			return fmt.Errorf("create entity: %w", err)
		}
		out.EntityID = entity.ID
	}

	w := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	verb := "found"
	if created {
		verb = "created"
	}
	_, _ = fmt.Fprintf(w, "user %s %s (%s)\n", out.UserID, verb, out.Email)
	if out.EntityID != "" {
		_, _ = fmt.Fprintf(w, "entity %s created\n", out.EntityID)
	}
	return nil
}

func ensureUser(ctx context.Context, users *service.UserService, opts *seedOptions) (*model.User, bool, error) {
	user, err := users.GetUserByEmail(ctx, opts.email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, service.ErrUserNotFound) {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}

	name := opts.name
	if strings.TrimSpace(name) == "" {
		name, _, _ = strings.Cut(opts.email, "@")
	}

	user, err = users.CreateUser(ctx, service.CreateUserInput{
		Email: opts.email,
		Name:  name,
		Role:  opts.role,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}
