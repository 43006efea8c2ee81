package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	echoapi "github.com/trezcool/dhamana/apps/api/echo"
	"github.com/trezcool/dhamana/core"
	"github.com/trezcool/dhamana/core/course"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf *core.Config
	db   *sql.DB
	svc  *course.Service
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  initialize -admin ADMIN -manager MANAGER - record the program authority")
	fmt.Fprintln(cli.out, "  token -identity IDENTITY - mint an API token; the signing secret is prompted when not configured")
	fmt.Fprintln(cli.out, "  status -course TITLE [-format json|yaml] - print a course with its lessons and escrow")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	initializeCmd := flag.NewFlagSet("initialize", flag.ExitOnError)
	initializeAdmin := initializeCmd.String("admin", "", "The identity of the program admin.")
	initializeManager := initializeCmd.String("manager", "", "The identity of the course manager.")

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenIdentity := tokenCmd.String("identity", "", "The identity the token is issued to.")

	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)
	statusCourse := statusCmd.String("course", "", "The course title.")
	statusFormat := statusCmd.String("format", "json", "Output format: json or yaml.")

	switch args[1] {
	case "migrate":
		return cli.migrate(args[2:])
	case "initialize":
		if err := initializeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *initializeAdmin == "" || *initializeManager == "" {
			initializeCmd.Usage()
			return errHelp
		}
		return cli.initialize(*initializeAdmin, *initializeManager)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenIdentity == "" {
			tokenCmd.Usage()
			return errHelp
		}
		secret := cli.conf.SecretKey
		if secret == "" {
			fmt.Fprint(cli.out, "Enter signing secret:")
			s, err := readPasswordFunc(int(syscall.Stdin))
			fmt.Fprintln(cli.out)
			if err != nil {
				return err
			}
			if len(s) == 0 {
				tokenCmd.Usage()
				return errHelp
			}
			secret = string(s)
		}
		return cli.token(*tokenIdentity, secret)
	case "status":
		if err := statusCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *statusCourse == "" || !(*statusFormat == "json" || *statusFormat == "yaml") {
			statusCmd.Usage()
			return errHelp
		}
		return cli.status(*statusCourse, *statusFormat)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) initialize(admin, manager string) error {
	auth, err := cli.svc.Initialize(context.Background(), course.NewAuthority{Admin: admin, Manager: manager})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "authority initialized: admin=%s manager=%s\n", auth.Admin, auth.Manager)
	return nil
}

func (cli *commandLine) token(identity, secret string) error {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(core.CleanString(identity), cli.conf), secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) status(title, format string) error {
	st, err := cli.svc.CourseStatus(context.Background(), title)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if format == "yaml" {
		// re-encode through a generic value so YAML keys match the JSON ones
		var v interface{}
		if err = json.Unmarshal(data, &v); err != nil {
			return err
		}
		if data, err = yaml.Marshal(v); err != nil {
			return err
		}
	}
	_, err = cli.out.Write(append(data, '\n'))
	return err
}
