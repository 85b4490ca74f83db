package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/repository"
	"github.com/noah-isme/demandes-api/internal/service"
)

type userRegistrar interface {
	RegisterUser(ctx context.Context, email, fullName string, role models.UserRole, password string) (*models.User, error)
}

// UserCmd returns the user command group.
func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Provision user accounts",
	}
	cmd.AddCommand(userAddCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var (
		email    string
		fullName string
		role     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an active user with the given role",
		Example: `  demandesctl user add --email minister@example.org --name "The Minister" \
      --role MINISTER --password change-me-now`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseRole(role)
			if err != nil {
				return err
			}
			cfg, db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			auth := service.NewAuthService(repository.NewUserRepository(db), validator.New(), zap.NewNop(), service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				Issuer:            cfg.JWT.Issuer,
			})
			return addUser(cmd, auth, email, fullName, parsed, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&fullName, "name", "", "display name (required)")
	cmd.Flags().StringVar(&role, "role", "", "one of "+roleList())
	cmd.Flags().StringVar(&password, "password", "", "initial password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func addUser(cmd *cobra.Command, registrar userRegistrar, email, fullName string, role models.UserRole, password string) error {
	user, err := registrar.RegisterUser(cmd.Context(), email, fullName, role, password)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%s)\n",
		color.New(color.FgGreen).Sprint("CREATED"), user.ID, user.Email, color.New(color.FgCyan).Sprint(user.Role))
	return nil
}

func parseRole(raw string) (models.UserRole, error) {
	role := models.UserRole(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q, expected one of %s", raw, roleList())
	}
	return role, nil
}

func roleList() string {
	names := make([]string, len(models.AssignableRoles))
	for i, role := range models.AssignableRoles {
		names[i] = string(role)
	}
	return strings.Join(names, ", ")
}
