package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/noah-isme/tuition-api/internal/repository"
	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/config"
	"github.com/noah-isme/tuition-api/pkg/database"
	"github.com/noah-isme/tuition-api/pkg/logger"
)

const usage = `usage:
  tuition-admin migrate up|down|status
  tuition-admin create-admin -username NAME [-phone +15550100000]`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "migrate":
		err = runMigrate(ctx, database.NewMigrator(db, logr), os.Args[2:], os.Stdout)
	case "create-admin":
		err = runCreateAdmin(ctx, db, logr, os.Args[2:])
	default:
		err = fmt.Errorf("unknown command %q\n%s", os.Args[1], usage)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

type migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Status(ctx context.Context) ([]string, error)
}

func runMigrate(ctx context.Context, m migrator, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("expected one of up, down, status")
	}
	switch args[0] {
	case "up":
		return m.Up(ctx)
	case "down":
		err := m.Down(ctx)
		if errors.Is(err, database.ErrNoMigrationsApplied) {
			fmt.Fprintln(out, "nothing to roll back")
			return nil
		}
		return err
	case "status":
		history, err := m.Status(ctx)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Fprintln(out, "no migrations applied")
		}
		for _, name := range history {
			fmt.Fprintln(out, name)
		}
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}
}

func runCreateAdmin(ctx context.Context, db *sqlx.DB, logr *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	username := fs.String("username", "", "login name for the admin")
	phone := fs.String("phone", "", "optional phone number in E.164 form")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*username) == "" {
		return errors.New("-username is required")
	}

	password, err := promptPassword(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	identities := repository.NewIdentityRepository(db)
	roles := repository.NewRoleRepository(db)
	auth := service.NewAuthService(identities, roles, nil, nil, nil, nil, nil, logr, service.AuthConfig{})
	accounts := service.NewAccountService(service.AccountDeps{
		Identities: identities,
		Roles:      roles,
		Sessions:   auth,
		Logger:     logr,
	})

	identity, err := accounts.CreateAdmin(ctx, *username, *phone, password)
	if err != nil {
		return err
	}
	fmt.Printf("admin %s ready (id %s)\n", *username, identity.ID)
	return nil
}

// promptPassword reads a password twice without echo when stdin is a
// terminal, or a single line otherwise.
func promptPassword(in *os.File, prompt io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return readLine(in)
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}
