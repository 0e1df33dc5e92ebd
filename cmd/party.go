package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"github.com/psds-microservice/watchparty-service/internal/rpc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	partyAddrKey    = "grpc_address"
	partyUserKey    = "user"
	partyTokenKey   = "token"
	partyHeaderKey  = "auth_header"
	partyTimeoutKey = "timeout"
)

var (
	partyCfgFile string
	partyClient  *rpc.Client

	// dialParty opens the client connection; tests replace it with a bufconn dialer.
	dialParty = func(addr string) (*rpc.Client, error) {
		conn, err := rpc.Dial(addr)
		if err != nil {
			return nil, err
		}
		return rpc.NewClient(conn), nil
	}
)

var partyCmd = &cobra.Command{
	Use:   "party",
	Short: "Manage watch parties on a running service over gRPC",
	Long: `Client commands for a running watchparty-service.
Settings come from flags, WATCHPARTY_* environment variables or ~/.watchparty.yaml.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if partyClient != nil {
			_ = partyClient.Close()
			partyClient = nil
		}
		c, err := dialParty(viper.GetString(partyAddrKey))
		if err != nil {
			return err
		}
		switch {
		case viper.GetString(partyTokenKey) != "":
			c = c.WithToken(viper.GetString(partyTokenKey))
		case viper.GetString(partyUserKey) != "":
			c = c.AsUser(viper.GetString(partyHeaderKey), viper.GetString(partyUserKey))
		}
		partyClient = c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if partyClient == nil {
			return nil
		}
		err := partyClient.Close()
		partyClient = nil
		return err
	},
}

func init() {
	cobra.OnInitialize(initPartyConfig)

	pf := partyCmd.PersistentFlags()
	pf.StringVar(&partyCfgFile, "config", "", "config file (default is $HOME/.watchparty.yaml)")
	pf.String("addr", "localhost:9090", "gRPC address of the watchparty service")
	pf.String("user", "", "caller identity sent in the auth header (header auth mode)")
	pf.String("token", "", "bearer token (jwt auth mode)")
	pf.String("auth-header", "X-User-ID", "header carrying the caller identity")
	pf.Duration("timeout", 10*time.Second, "per-call timeout")

	_ = viper.BindPFlag(partyAddrKey, pf.Lookup("addr"))
	_ = viper.BindPFlag(partyUserKey, pf.Lookup("user"))
	_ = viper.BindPFlag(partyTokenKey, pf.Lookup("token"))
	_ = viper.BindPFlag(partyHeaderKey, pf.Lookup("auth-header"))
	_ = viper.BindPFlag(partyTimeoutKey, pf.Lookup("timeout"))

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List parties, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, _ := cmd.Flags().GetBool("active")
			host, _ := cmd.Flags().GetString("host")
			limit, _ := cmd.Flags().GetInt("limit")
			return callParty(cmd, func(ctx context.Context) (any, error) {
				return partyClient.List(ctx, model.ListFilter{ActiveOnly: active, Host: host, Limit: limit})
			})
		},
	}
	listCmd.Flags().Bool("active", false, "only active parties")
	listCmd.Flags().String("host", "", "only parties of this host")
	listCmd.Flags().Int("limit", 0, "maximum number of parties (0 = all)")

	partyCmd.AddCommand(
		&cobra.Command{
			Use:   "create <movie title>",
			Short: "Start a party as host",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callParty(cmd, func(ctx context.Context) (any, error) {
					return partyClient.Create(ctx, strings.Join(args, " "))
				})
			},
		},
		&cobra.Command{
			Use:   "get <session id>",
			Short: "Show a party with its roster, chat and reactions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callParty(cmd, func(ctx context.Context) (any, error) {
					return partyClient.Get(ctx, args[0])
				})
			},
		},
		listCmd,
		&cobra.Command{
			Use:   "join <session id>",
			Short: "Join a party",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callParty(cmd, func(ctx context.Context) (any, error) {
					return partyClient.Join(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "leave <session id>",
			Short: "Leave a party",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callParty(cmd, func(ctx context.Context) (any, error) {
					return nil, partyClient.Leave(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "chat <session id> <message>",
			Short: "Post a chat message",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callParty(cmd, func(ctx context.Context) (any, error) {
					return partyClient.PostChat(ctx, args[0], strings.Join(args[1:], " "))
				})
			},
		},
		&cobra.Command{
			Use:   "react <session id> <reaction>",
			Short: "Post a reaction (e.g. laugh, ❤️)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callParty(cmd, func(ctx context.Context) (any, error) {
					return partyClient.PostReaction(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "end <session id>",
			Short: "End a party (host only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callParty(cmd, func(ctx context.Context) (any, error) {
					return nil, partyClient.End(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "shell",
			Short: "Interactive mode: run party commands line by line",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPartyShell(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			},
		},
	)
}

// initPartyConfig reads ~/.watchparty.yaml (or --config) and WATCHPARTY_* variables.
func initPartyConfig() {
	if partyCfgFile != "" {
		viper.SetConfigFile(partyCfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".watchparty")
	}
	viper.SetEnvPrefix("WATCHPARTY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && partyCfgFile != "" {
			fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		}
	}
}

func callParty(cmd *cobra.Command, call func(ctx context.Context) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration(partyTimeoutKey))
	defer cancel()
	res, err := call(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res == nil {
		fmt.Fprintln(out, "ok")
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// runPartyShell executes party subcommands read from in until EOF or "exit".
// The connection opened for the shell is reused by every line.
func runPartyShell(in io.Reader, out, errOut io.Writer) error {
	fmt.Fprintln(out, "entering interactive mode, type 'exit' to quit")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "party> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		args, err := shellwords.Parse(line)
		if err != nil {
			fmt.Fprintln(errOut, "parse:", err)
			continue
		}
		if err := runPartyLine(args, out); err != nil {
			fmt.Fprintln(errOut, "error:", err)
		}
	}
}

func runPartyLine(args []string, out io.Writer) error {
	sub, rest, err := partyCmd.Find(args)
	if err != nil || sub == partyCmd {
		return fmt.Errorf("unknown command %q", strings.Join(args, " "))
	}
	if sub.Name() == "shell" {
		return errors.New("already in shell")
	}
	sub.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	if err := sub.ParseFlags(rest); err != nil {
		return err
	}
	pos := sub.Flags().Args()
	if sub.Args != nil {
		if err := sub.Args(sub, pos); err != nil {
			return err
		}
	}
	sub.SetOut(out)
	sub.SetContext(context.Background())
	return sub.RunE(sub, pos)
}
