package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/certledger/certanchor/config"
	"github.com/certledger/certanchor/internal/anchor"
	"github.com/certledger/certanchor/internal/certstore"
	"github.com/certledger/certanchor/internal/keys"
	"github.com/certledger/certanchor/internal/metadata"
	"github.com/certledger/certanchor/internal/tenant"
	"github.com/certledger/certanchor/pkg/types"
)

// certificateInput is one certificate in a JSON request file.
type certificateInput struct {
	GroupID         string           `json:"groupId"`
	CertificateType string           `json:"certificateType"`
	CertificateData []metadata.Field `json:"certificateData"`
}

func (c certificateInput) request() anchor.CertificateRequest {
	return anchor.CertificateRequest{
		GroupID:         c.GroupID,
		CertificateType: c.CertificateType,
		CertificateData: c.CertificateData,
	}
}

func readJSONFile(path string, v any) error {
	if path == "" {
		return fmt.Errorf("a JSON file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var tenantFlag = cli.StringFlag{
	Name:  "tenant, t",
	Usage: "The tenant name.",
}

var initCommand = cli.Command{
	Name:  "init",
	Usage: "Write a default config file.",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "force",
			Usage: "Overwrite an existing file.",
		},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		path := ctx.GlobalString("config")
		if path == "" {
			path = cfg.ConfigFile()
		}
		if _, err := os.Stat(path); err == nil && !ctx.Bool("force") {
			return fmt.Errorf("%s exists, use --force to overwrite", path)
		}
		if err := config.WriteDefaultConfig(path, cfg.Network); err != nil {
			return err
		}
		fmt.Println(filepath.Clean(path))
		return nil
	},
}

var newMnemonicCommand = cli.Command{
	Name:  "newmnemonic",
	Usage: "Generate a 24 word funding mnemonic.",
	Action: func(_ *cli.Context) error {
		phrase, err := keys.GenerateMnemonic()
		if err != nil {
			return err
		}
		fmt.Println(phrase)
		return nil
	},
}

var addressCommand = cli.Command{
	Name:  "address",
	Usage: "Show the funding address and its child addresses.",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "children",
			Usage: "Number of child addresses to list.",
		},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		phrase := cfg.Wallet.Mnemonic
		if phrase == "" {
			if phrase, err = readMnemonic(); err != nil {
				return err
			}
		}
		w, err := keys.OpenWallet(phrase, cfg.Network.Ledger())
		if err != nil {
			return err
		}
		defer w.Zero()

		out := struct {
			Network  string   `json:"network"`
			Address  string   `json:"address"`
			Children []string `json:"children,omitempty"`
		}{Network: string(cfg.Network), Address: w.Address().String()}

		if n := ctx.Int("children"); n > 0 {
			addrs, err := w.ChildAddresses(n)
			if err != nil {
				return err
			}
			for _, a := range addrs {
				out.Children = append(out.Children, a.String())
			}
		}
		return printJSON(out)
	},
}

var tenantCommand = cli.Command{
	Name:  "tenant",
	Usage: "Manage the tenant directory.",
	Subcommands: []cli.Command{
		{
			Name:      "add",
			Usage:     "Register or update a tenant.",
			ArgsUsage: "name",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "org", Usage: "Organization name."},
				cli.StringFlag{Name: "subdomain", Usage: "Tenant subdomain."},
				cli.BoolFlag{Name: "inactive", Usage: "Register as inactive."},
			},
			Action: func(ctx *cli.Context) error {
				name := ctx.Args().First()
				if name == "" {
					return cli.ShowCommandHelp(ctx, "add")
				}
				t := tenant.Tenant{
					Name:         name,
					Organization: ctx.String("org"),
					Subdomain:    ctx.String("subdomain"),
					Status:       tenant.StatusActive,
				}
				if ctx.Bool("inactive") {
					t.Status = tenant.StatusInactive
				}
				n, err := openNode(ctx)
				if err != nil {
					return err
				}
				defer n.Stop()
				if err := n.Registry().Register(context.Background(), t); err != nil {
					return err
				}
				return printJSON(t)
			},
		},
		{
			Name:  "list",
			Usage: "List active tenants.",
			Action: func(ctx *cli.Context) error {
				n, err := openNode(ctx)
				if err != nil {
					return err
				}
				defer n.Stop()
				ts, err := n.Registry().ActiveTenants(context.Background())
				if err != nil {
					return err
				}
				return printJSON(ts)
			},
		},
	},
}

var anchorCommand = cli.Command{
	Name:  "anchor",
	Usage: "Anchor one certificate.",
	Flags: []cli.Flag{
		tenantFlag,
		cli.StringFlag{
			Name:      "file, f",
			Usage:     "JSON file with groupId, certificateType and certificateData.",
			TakesFile: true,
		},
	},
	Action: func(ctx *cli.Context) error {
		var in certificateInput
		if err := readJSONFile(ctx.String("file"), &in); err != nil {
			return err
		}
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()

		bg := context.Background()
		tc, err := n.Resolve(bg, ctx.String("tenant"))
		if err != nil {
			return err
		}
		res, err := n.Service().Anchor(bg, tc, in.request())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var bulkCommand = cli.Command{
	Name:  "bulk",
	Usage: "Anchor several certificates in one transaction.",
	Flags: []cli.Flag{
		tenantFlag,
		cli.StringFlag{
			Name:      "file, f",
			Usage:     "JSON file with an array of certificates.",
			TakesFile: true,
		},
	},
	Action: func(ctx *cli.Context) error {
		var in []certificateInput
		if err := readJSONFile(ctx.String("file"), &in); err != nil {
			return err
		}
		reqs := make([]anchor.CertificateRequest, len(in))
		for i, c := range in {
			reqs[i] = c.request()
		}
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()

		bg := context.Background()
		tc, err := n.Resolve(bg, ctx.String("tenant"))
		if err != nil {
			return err
		}
		res, err := n.Service().AnchorBulk(bg, tc, reqs)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var reissueCommand = cli.Command{
	Name:      "reissue",
	Usage:     "Anchor a new version of a certificate.",
	ArgsUsage: "record-id",
	Flags: []cli.Flag{
		tenantFlag,
		cli.StringFlag{
			Name:      "file, f",
			Usage:     "JSON file with the new certificateData array.",
			TakesFile: true,
		},
	},
	Action: func(ctx *cli.Context) error {
		id, err := uuid.Parse(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("record id: %w", err)
		}
		var data []metadata.Field
		if err := readJSONFile(ctx.String("file"), &data); err != nil {
			return err
		}
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()

		bg := context.Background()
		tc, err := n.Resolve(bg, ctx.String("tenant"))
		if err != nil {
			return err
		}
		res, err := n.Service().Reissue(bg, tc, id, data)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var verifyCommand = cli.Command{
	Name:      "verify",
	Usage:     "Compare a stored certificate with the chain.",
	ArgsUsage: "record-id",
	Flags:     []cli.Flag{tenantFlag},
	Action: func(ctx *cli.Context) error {
		id, err := uuid.Parse(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("record id: %w", err)
		}
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()

		bg := context.Background()
		tc, err := n.Resolve(bg, ctx.String("tenant"))
		if err != nil {
			return err
		}
		v, err := n.Service().Verify(bg, tc, id)
		if err != nil {
			return err
		}
		return printJSON(v)
	},
}

var lookupCommand = cli.Command{
	Name:      "lookup",
	Usage:     "Decode the certificate anchored by a transaction.",
	ArgsUsage: "tx-hash",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "index",
			Value: -1,
			Usage: "Certificate index within a bulk transaction.",
		},
	},
	Action: func(ctx *cli.Context) error {
		h, err := types.HexToHash(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("tx hash: %w", err)
		}
		var index *int
		if ctx.IsSet("index") {
			i := ctx.Int("index")
			index = &i
		}
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()

		cert, err := n.Service().LookupByTx(context.Background(), h, index)
		if err != nil {
			return err
		}
		return printJSON(cert)
	},
}

var reconcileCommand = cli.Command{
	Name:  "reconcile",
	Usage: "Run one confirmation pass over every active tenant.",
	Action: func(ctx *cli.Context) error {
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()
		return printJSON(n.Reconciler().RunOnce(context.Background()))
	},
}

var replayCommand = cli.Command{
	Name:  "replay",
	Usage: "Store records of submissions left in the recovery journal.",
	Action: func(ctx *cli.Context) error {
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()
		restored, err := n.ReplayJournal(context.Background())
		if err != nil {
			return err
		}
		return printJSON(map[string]int{"restored": restored})
	},
}

var pendingCommand = cli.Command{
	Name:  "pending",
	Usage: "List a tenant's records awaiting block confirmation.",
	Flags: []cli.Flag{tenantFlag},
	Action: func(ctx *cli.Context) error {
		n, err := openNode(ctx)
		if err != nil {
			return err
		}
		defer n.Stop()

		bg := context.Background()
		tc, err := n.Resolve(bg, ctx.String("tenant"))
		if err != nil {
			return err
		}
		rs, err := tc.Store.ListPending(bg)
		if err != nil {
			return err
		}
		if rs == nil {
			rs = []*certstore.Record{}
		}
		return printJSON(rs)
	},
}
