package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/pipedeck/pipedeck/internal/vault"
	"github.com/spf13/cobra"
)

var (
	vaultValue      string
	vaultShowValues bool
)

// vaultCmd represents the vault command
var vaultCmd = &cobra.Command{
	Use:     "vault",
	Aliases: []string{"secrets"},
	Short:   "Manage secrets used by vault arguments",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secrets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}

		secrets, err := s.vault.List(cmd.Context())
		if err != nil {
			return s.fail(err)
		}
		if len(secrets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No secrets stored.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		for _, secret := range secrets {
			value := vault.Mask(secret.Value)
			if vaultShowValues {
				value = secret.Value
			}
			fmt.Fprintf(w, "%s\t%s\n", secret.Key, value)
		}
		return w.Flush()
	},
}

var vaultAddCmd = &cobra.Command{
	Use:   "add [key]",
	Short: "Store a new secret",
	Long: `Store a new secret. The value is prompted for unless --value is given.

Examples:
  pipedeck-ctl vault add deploy-token
  pipedeck-ctl vault add deploy-token --value "$TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSecret(cmd, args[0], false)
	},
}

var vaultUpdateCmd = &cobra.Command{
	Use:   "update [key]",
	Short: "Replace the value of a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSecret(cmd, args[0], true)
	},
}

var vaultRemoveCmd = &cobra.Command{
	Use:     "rm [key]",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a secret",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := requireLogin(cmd.Context(), s); err != nil {
			return err
		}
		return vaultError(s.vault.Remove(cmd.Context(), args[0]))
	},
}

func writeSecret(cmd *cobra.Command, key string, update bool) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireLogin(cmd.Context(), s); err != nil {
		return err
	}

	value := vaultValue
	if !cmd.Flags().Changed("value") {
		prompt := promptui.Prompt{Label: "Value for " + key, Mask: '*'}
		if value, err = prompt.Run(); err != nil {
			return err
		}
	}

	if update {
		return vaultError(s.vault.Update(cmd.Context(), key, value))
	}
	return vaultError(s.vault.Add(cmd.Context(), key, value))
}

// vaultError marks backend failures as reported; the vault already showed them.
func vaultError(err error) error {
	if err == nil || errors.Is(err, vault.ErrKeyRequired) {
		return err
	}
	return &reportedError{err}
}

func init() {
	vaultListCmd.Flags().BoolVar(&vaultShowValues, "show-values", false, "Print secret values instead of masking them")
	vaultAddCmd.Flags().StringVar(&vaultValue, "value", "", "Secret value (prompted when omitted)")
	vaultUpdateCmd.Flags().StringVar(&vaultValue, "value", "", "Secret value (prompted when omitted)")

	vaultCmd.AddCommand(vaultListCmd)
	vaultCmd.AddCommand(vaultAddCmd)
	vaultCmd.AddCommand(vaultUpdateCmd)
	vaultCmd.AddCommand(vaultRemoveCmd)
	rootCmd.AddCommand(vaultCmd)
}
