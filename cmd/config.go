package cmd

import (
	"fmt"
	"strings"

	"github.com/marcus/kasir/internal/config"
	"github.com/marcus/kasir/internal/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configKey binds a dotted key to a field of the config file.
type configKey struct {
	name   string
	secret bool
	field  func(*config.Config) *string
}

var configKeys = []configKey{
	{name: "branch", field: func(c *config.Config) *string { return &c.Branch }},
	{name: "device_id", field: func(c *config.Config) *string { return &c.DeviceID }},
	{name: "prefix", field: func(c *config.Config) *string { return &c.Prefix }},
	{name: "remote.url", field: func(c *config.Config) *string { return &c.Remote.URL }},
	{name: "remote.username", field: func(c *config.Config) *string { return &c.Remote.Username }},
	{name: "remote.password", secret: true, field: func(c *config.Config) *string { return &c.Remote.Password }},
	{name: "remote.namespace", field: func(c *config.Config) *string { return &c.Remote.Namespace }},
	{name: "remote.database", field: func(c *config.Config) *string { return &c.Remote.Database }},
	{name: "remote.connect_timeout", field: func(c *config.Config) *string { return &c.Remote.ConnectTimeout }},
	{name: "sync.write_timeout", field: func(c *config.Config) *string { return &c.Sync.WriteTimeout }},
	{name: "sync.probe_interval", field: func(c *config.Config) *string { return &c.Sync.ProbeInterval }},
	{name: "events.amqp_url", secret: true, field: func(c *config.Config) *string { return &c.Events.AMQPURL }},
	{name: "events.exchange", field: func(c *config.Config) *string { return &c.Events.Exchange }},
	{name: "events.webhook_url", field: func(c *config.Config) *string { return &c.Events.WebhookURL }},
	{name: "events.webhook_secret", secret: true, field: func(c *config.Config) *string { return &c.Events.WebhookSecret }},
}

func lookupConfigKey(name string) (configKey, bool) {
	for _, k := range configKeys {
		if k.name == name {
			return k, true
		}
	}
	return configKey{}, false
}

func configKeyNames() string {
	names := make([]string, len(configKeys))
	for i, k := range configKeys {
		names[i] = k.name
	}
	return strings.Join(names, ", ")
}

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage terminal configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		k, ok := lookupConfigKey(key)
		if !ok {
			output.Error("unknown config key: %s", key)
			fmt.Println("Valid keys:", configKeyNames())
			return fmt.Errorf("unknown config key: %s", key)
		}

		if err := config.Update(getDataDir(), func(c *config.Config) error {
			*k.field(c) = strings.TrimSpace(val)
			return nil
		}); err != nil {
			output.Error("save config: %v", err)
			return err
		}

		if k.secret {
			val = "********"
		}
		output.Success("set %s = %s", key, val)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config value, after environment overrides",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, ok := lookupConfigKey(args[0])
		if !ok {
			output.Error("unknown config key: %s", args[0])
			fmt.Println("Valid keys:", configKeyNames())
			return fmt.Errorf("unknown config key: %s", args[0])
		}
		cfg, err := config.Resolve(getDataDir())
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		fmt.Println(*k.field(cfg))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all config values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(getDataDir())
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		for _, k := range configKeys {
			if f := k.field(cfg); k.secret && *f != "" {
				*f = "********"
			}
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			output.Error("marshal config: %v", err)
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Clear a config value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, ok := lookupConfigKey(args[0])
		if !ok {
			output.Error("unknown config key: %s", args[0])
			return fmt.Errorf("unknown config key: %s", args[0])
		}
		if err := config.Update(getDataDir(), func(c *config.Config) error {
			*k.field(c) = ""
			return nil
		}); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		output.Success("unset %s", k.name)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd, configUnsetCmd)
	rootCmd.AddCommand(configCmd)
}
