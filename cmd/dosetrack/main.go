package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/nmoreau/dosetrack/internal/app"
	"github.com/nmoreau/dosetrack/internal/config"
	"github.com/nmoreau/dosetrack/internal/store"
	"github.com/nmoreau/dosetrack/internal/users"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "user":
			handleUserCommand(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("dosetrack version %s\n", version)
			return
		}
	}

	flag.Parse()

	application := initApp()
	application.RunServer()
}

func initApp() *app.App {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting dosetrack", zap.String("version", version))

	config.LoadEnvFiles()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application, err := app.New(cfg, st, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	return application
}

func handleUserCommand(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: dosetrack user [create|list]")
		return
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("user create", flag.ExitOnError)
		name := fs.String("name", "", "Display name")
		email := fs.String("email", "", "Email address")
		role := fs.String("role", "patient", "Account role: patient or caretaker")
		cfgPath := fs.String("config", "", "Path to config file")
		data := fs.String("data", "", "Path to data directory")
		fs.Parse(args[1:])

		if *email == "" {
			fmt.Println("Error: -email is required")
			os.Exit(1)
		}
		if *name == "" {
			*name = strings.Split(*email, "@")[0]
		}

		password, err := promptPassword()
		if err != nil {
			fmt.Printf("Error reading password: %v\n", err)
			os.Exit(1)
		}

		application := initAppWith(*cfgPath, *data)
		user, err := application.Users.Register(*name, *email, password, users.Role(*role))
		if err != nil {
			fmt.Printf("Error creating user: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("User created: %s (%s, %s)\n", user.Name, user.Email, user.Role)

	case "list":
		fs := flag.NewFlagSet("user list", flag.ExitOnError)
		cfgPath := fs.String("config", "", "Path to config file")
		data := fs.String("data", "", "Path to data directory")
		fs.Parse(args[1:])

		application := initAppWith(*cfgPath, *data)
		patients, err := application.Users.ListPatients()
		if err != nil {
			fmt.Printf("Error listing users: %v\n", err)
			os.Exit(1)
		}

		if len(patients) == 0 {
			fmt.Println("No patients registered.")
			return
		}
		fmt.Println("Patients:")
		for _, p := range patients {
			fmt.Printf("  %s  %s  caretakers: %d\n", p.Email, p.Name, len(p.Caretakers))
		}

	default:
		fmt.Println("Usage: dosetrack user [create|list]")
	}
}

func initAppWith(cfgPath, data string) *app.App {
	*configPath = cfgPath
	*dataDir = data
	return initApp()
}

// promptPassword reads the password twice without echo
func promptPassword() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("password prompt requires a terminal")
	}

	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}

	fmt.Print("Confirm password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

func printHelp() {
	fmt.Println(`dosetrack - personal medication adherence tracker

Usage:
  dosetrack [flags]              Run the server
  dosetrack user create          Create an account
  dosetrack user list            List registered patients
  dosetrack version              Print version

Flags:
  -config string   Path to config file
  -data string     Path to data directory`)
}
