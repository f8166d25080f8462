package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/smpctl/internal/config"
	"github.com/muurk/smpctl/internal/ui"
)

func init() {
	profileSaveCmd.Flags().BoolVar(&profileDefault, "default", false, "Make this the default profile")

	profileCmd.AddCommand(profileListCmd, profileShowCmd, profileSaveCmd)
	rootCmd.AddCommand(profileCmd)
}

var profileDefault bool

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		names := reg.ProfileNames()
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			s, err := reg.Settings(name)
			if err != nil {
				return err
			}
			def := ""
			if name == reg.DefaultProfile {
				def = "*"
			}
			rows = append(rows, []string{def, name, s.Transport, endpointOf(s)})
		}
		return ui.NewPrinter(cmd.OutOrStdout(), flags.json).PrintTable(reg.Profiles, []string{"", "Profile", "Transport", "Device"}, rows)
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the connection settings commands would use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		fields := []ui.Field{
			{Key: "Transport", Value: s.Transport},
			{Key: "Device", Value: endpointOf(s)},
			{Key: "MTU", Value: strconv.Itoa(s.MTU)},
			{Key: "Timeout", Value: s.Timeout.String()},
			{Key: "Retries", Value: strconv.Itoa(s.Retries)},
			{Key: "SMP version", Value: strconv.Itoa(s.Version)},
		}
		if s.Transport == config.TransportSerial {
			fields = append(fields, ui.Field{Key: "Baud", Value: strconv.Itoa(s.Baud)})
		}

		p := ui.NewPrinter(cmd.OutOrStdout(), flags.json)
		if err := s.Validate(); err != nil {
			p.Println(ui.NewWarningResult("Incomplete settings", append(fields, ui.Field{Key: "Problem", Value: err.Error()})...).Render())
			return nil
		}
		return p.PrintSuccess("Connection settings", s, fields...)
	},
}

var profileSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Save the current connection settings as a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		s, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("not saving profile %s: %w", name, err)
		}

		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		reg.SetProfile(name, s.Profile())
		if profileDefault {
			reg.DefaultProfile = name
		}

		if flags.configPath != "" {
			err = reg.SaveTo(flags.configPath)
		} else {
			err = reg.Save()
		}
		if err != nil {
			return err
		}
		return ui.NewPrinter(cmd.OutOrStdout(), flags.json).PrintSuccess("Profile saved", map[string]string{"profile": name},
			ui.Field{Key: "Profile", Value: name},
			ui.Field{Key: "Transport", Value: s.Transport},
			ui.Field{Key: "Device", Value: endpointOf(s)})
	},
}

func endpointOf(s config.Settings) string {
	switch s.Transport {
	case config.TransportSerial:
		return s.Port
	case config.TransportUDP:
		return s.Address
	default:
		return s.URL
	}
}
