package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/pkg/keyring"
)

func init() {
	verifyBankKeysCmd.Flags().String("authentication", "", "hash of the bank authentication key from the bank letter (hex)")
	verifyBankKeysCmd.Flags().String("encryption", "", "hash of the bank encryption key from the bank letter (hex)")
	_ = verifyBankKeysCmd.MarkFlagRequired("authentication")
	_ = verifyBankKeysCmd.MarkFlagRequired("encryption")

	passwdCmd.Flags().String("new-password-env", "EBICS_NEW_KEYRING_PASSWORD",
		"environment variable holding the new keyring password")

	keyringCmd.AddCommand(checkCmd, passwdCmd)
	rootCmd.AddCommand(hevCmd, iniCmd, hiaCmd, hpbCmd, verifyBankKeysCmd, letterCmd, keyringCmd)
}

var hevCmd = &cobra.Command{
	Use:   "hev",
	Short: "List the EBICS versions supported by the bank",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, true)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		resp, err := s.client.HEV(ctx)
		if err != nil {
			return err
		}
		for _, v := range resp.Versions {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", v.Schema, v.Number)
		}
		return nil
	},
}

var iniCmd = &cobra.Command{
	Use:   "ini",
	Short: "Create the keyring if needed and send the signature key (INI)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, true)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		err = s.client.INI(ctx)
		// Keys generated before a failed send are kept so a retry reuses them
		if saveErr := s.save(ctx); saveErr != nil {
			return saveErr
		}
		return err
	},
}

var hiaCmd = &cobra.Command{
	Use:   "hia",
	Short: "Send the authentication and encryption keys (HIA)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		err = s.client.HIA(ctx)
		if saveErr := s.save(ctx); saveErr != nil {
			return saveErr
		}
		return err
	},
}

var hpbCmd = &cobra.Command{
	Use:   "hpb",
	Short: "Download the bank keys (HPB) and print their hashes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		if _, err := s.client.HPB(ctx); err != nil {
			return err
		}
		if err := s.save(ctx); err != nil {
			return err
		}
		auth, enc, err := s.client.BankKeyHashes()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		profile := s.cfg.Version().Profile()
		fmt.Fprintf(out, "%s\t%s\n", profile.AuthenticationVersion, formatHash(auth))
		fmt.Fprintf(out, "%s\t%s\n", profile.EncryptionVersion, formatHash(enc))
		fmt.Fprintln(out, "compare with the bank letter, then run 'ebics verify-bank-keys'")
		return nil
	},
}

var verifyBankKeysCmd = &cobra.Command{
	Use:   "verify-bank-keys",
	Short: "Trust the bank keys after comparing them with the bank letter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		authHash, err := parseHash(cmd, "authentication")
		if err != nil {
			return err
		}
		encHash, err := parseHash(cmd, "encryption")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		if err := s.client.VerifyBankKeys(authHash, encHash); err != nil {
			return err
		}
		return s.save(ctx)
	},
}

var letterCmd = &cobra.Command{
	Use:   "letter",
	Short: "Print the key hashes for the INI and HIA letters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		hashes, err := s.client.InitializationLetter()
		if err != nil {
			return err
		}
		sub := s.cfg.Identity()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Host ID:    %s\nPartner ID: %s\nUser ID:    %s\nVersion:    %s\n\n",
			sub.HostID, sub.PartnerID, sub.UserID, s.cfg.Version().Profile().Name)
		for _, kind := range []keyring.KeyKind{keyring.KeySignature, keyring.KeyAuthentication, keyring.KeyEncryption} {
			if hash, ok := hashes[kind]; ok {
				fmt.Fprintf(out, "%s\t%s\n", kind, formatHash(hash))
			}
		}
		return nil
	},
}

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Inspect and maintain the stored keyring",
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the password opens the keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		if !s.client.CheckKeyring() {
			return fmt.Errorf("keyring %s cannot be opened with the configured password", s.id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "keyring %s: %s\n", s.id, s.client.KeyRing().State())
		return nil
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Re-seal the keyring under a new password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, _ := cmd.Flags().GetString("new-password-env")
		newPassword := os.Getenv(env)
		if newPassword == "" {
			return fmt.Errorf("environment variable %s is not set", env)
		}

		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close(ctx)

		if err := s.client.ChangeKeyringPassword(newPassword); err != nil {
			return err
		}
		return s.save(ctx)
	},
}

// formatHash prints a digest the way bank letters do: uppercase hex pairs
func formatHash(b []byte) string {
	pairs := make([]string, len(b))
	for i, c := range b {
		pairs[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(pairs, " ")
}

func parseHash(cmd *cobra.Command, flag string) ([]byte, error) {
	value, _ := cmd.Flags().GetString(flag)
	value = strings.NewReplacer(" ", "", ":", "").Replace(value)
	hash, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return hash, nil
}
