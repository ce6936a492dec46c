package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/config"
	"sameieportalen.no/internal/obs"
)

const usage = `usage: sameiectl [flags] <command> [args]

commands:
  token                 print a session token for -as
  me                    show roles and permissions of -as
  check <permission>    check one permission for -as
  send <document> [url] send a document for approval
  status <batch>        show an approval batch
  meeting <id> <url> [title]
                        register a meeting and its minutes document
  roster-add <name> <email> <role>
                        add a roster entry
  admins <email>...     replace the admin allow-list`

func main() {
	log := obs.Component("sameiectl")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	var (
		base = flag.String("url", cfg.PublicURL, "API base URL")
		as   = flag.String("as", os.Getenv("SAMEIE_AS"), "caller email")
		ttl  = flag.Duration("ttl", time.Hour, "session token lifetime")
	)
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	token := ""
	if *as != "" {
		if cfg.AuthSecret == "" {
			log.Fatal("SAMEIE_AUTH_SECRET is required to act as a user")
		}
		token, err = auth.NewSessions(cfg.AuthSecret).GenerateToken(*as, *ttl)
		if err != nil {
			log.WithError(err).Fatal("generate token")
		}
	}
	c := &client{base: strings.TrimRight(*base, "/"), token: token, http: &http.Client{Timeout: 15 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := flag.Args()
	switch args[0] {
	case "token":
		if token == "" {
			log.Fatal("token requires -as")
		}
		fmt.Println(token)
		return
	case "me":
		err = c.call(ctx, http.MethodGet, "/v1/me", nil)
	case "check":
		requireArgs(args, 2)
		err = c.call(ctx, http.MethodGet, "/v1/permissions/"+url.PathEscape(args[1]), nil)
	case "send":
		requireArgs(args, 2)
		body := map[string]string{}
		if len(args) > 2 {
			body["document_url"] = args[2]
		}
		err = c.call(ctx, http.MethodPost, "/v1/documents/"+url.PathEscape(args[1])+"/approvals", body)
	case "status":
		requireArgs(args, 2)
		err = c.call(ctx, http.MethodGet, "/v1/approvals/"+url.PathEscape(args[1]), nil)
	case "meeting":
		requireArgs(args, 3)
		body := map[string]string{"document_url": args[2]}
		if len(args) > 3 {
			body["title"] = strings.Join(args[3:], " ")
		}
		err = c.call(ctx, http.MethodPut, "/v1/meetings/"+url.PathEscape(args[1]), body)
	case "roster-add":
		requireArgs(args, 4)
		body := map[string]string{"name": args[1], "email": args[2], "role": strings.Join(args[3:], " ")}
		err = c.call(ctx, http.MethodPost, "/v1/admin/roster", body)
	case "admins":
		requireArgs(args, 2)
		err = c.call(ctx, http.MethodPut, "/v1/admin/admins", map[string][]string{"emails": args[1:]})
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal(args[0])
	}
}

func requireArgs(args []string, n int) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

// call performs one request and pretty-prints the JSON response. Non-2xx
// responses are printed and returned as errors.
func (c *client) call(ctx context.Context, method, path string, body any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if json.Indent(&out, raw, "", "  ") != nil {
		out.Reset()
		out.Write(raw)
	}
	fmt.Println(out.String())
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
