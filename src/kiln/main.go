package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"gitlab.com/kiln-package-manager/kiln/src/kilnlib"
)

/* ----------------kiln | source package manager---------------- */
/*     builds packages from recipes and tracks the result        */
/* -------------------------------------------------------------- */

var kilnVer = "0.1.0"

var subcommand = "help"
var subcommandArgs []string

// Flags
var configPath = ""
var yesAll = false

func main() {
	resolveFlags()

	if getCommandType() == help || getCommandType() == _default {
		resolveCommand(nil)
		return
	}

	if configPath == "" {
		configPath = os.Getenv("KILN_CONFIG")
	}
	if configPath == "" {
		configPath = kilnlib.DefaultConfigPath
	}

	config, err := kilnlib.ReadConfig(configPath)
	if err != nil {
		log.Fatalf("Error: could not read kiln config: %s", err)
	}
	color.NoColor = !config.ColorEnabled()

	resolveCommand(config)
}

type commandType uint8

const (
	_default commandType = iota
	help
	info
	build
	install
	remove
	orphans
	autoremove
	rebuild
	rebuildSystem
	upgrade
	listInstalled
	markManual
	search
	sync
)

func getCommandType() commandType {
	switch subcommand {
	case "version":
		return _default
	case "info":
		return info
	case "build":
		return build
	case "install":
		return install
	case "remove":
		return remove
	case "orphans":
		return orphans
	case "autoremove":
		return autoremove
	case "rebuild":
		return rebuild
	case "rebuild-system":
		return rebuildSystem
	case "upgrade":
		return upgrade
	case "list-installed":
		return listInstalled
	case "mark-manual":
		return markManual
	case "search":
		return search
	case "sync":
		return sync
	default:
		return help
	}
}

func requirePackageArg() string {
	if len(subcommandArgs) == 0 {
		log.Fatalf("Error: no package was given")
	}
	return subcommandArgs[0]
}

func fatalOperationErr(err error) {
	if errors.As(err, &kilnlib.RecipeNotFoundErr{}) ||
		errors.As(err, &kilnlib.RecipeMalformedErr{}) ||
		errors.As(err, &kilnlib.DependencyCycleErr{}) ||
		errors.As(err, &kilnlib.FetchFailedErr{}) ||
		errors.As(err, &kilnlib.HashMismatchErr{}) ||
		errors.As(err, &kilnlib.UnsupportedArchiveErr{}) ||
		errors.As(err, &kilnlib.NoBuildStrategyErr{}) ||
		errors.As(err, &kilnlib.HasReverseDependentsErr{}) ||
		errors.As(err, &kilnlib.DatabaseLockedErr{}) {
		log.Fatalf("Error: %s", err)
	}
	log.Fatalf("Error: could not complete operation: %s", err)
}

func confirm(prompt string) {
	if yesAll {
		return
	}
	fmt.Printf("%s [y\\N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	text, _ := reader.ReadString('\n')
	text = strings.TrimSpace(strings.ToLower(text))
	if text != "y" && text != "yes" {
		fmt.Println("Cancelling operation...")
		os.Exit(1)
	}
}

func resolveCommand(config *kilnlib.KilnConfig) {
	switch getCommandType() {
	case _default:
		fmt.Println("kiln source package manager")
		fmt.Println("Version: " + kilnVer)
	case info:
		pkg := requirePackageArg()
		ret, err := kilnlib.Info(config, pkg)
		if err != nil {
			fatalOperationErr(err)
		}
		fmt.Println(ret)
	case build:
		pkg := requirePackageArg()
		err := kilnlib.Build(config, pkg)
		if err != nil {
			fatalOperationErr(err)
		}
	case install:
		pkg := requirePackageArg()
		err := kilnlib.Install(config, pkg, true)
		if err != nil {
			fatalOperationErr(err)
		}
	case remove:
		pkg := requirePackageArg()
		confirm(fmt.Sprintf("Do you wish to remove package (%s)?", pkg))
		err := kilnlib.Remove(config, pkg)
		if err != nil {
			fatalOperationErr(err)
		}
	case orphans:
		ret, err := kilnlib.Orphans(config)
		if err != nil {
			fatalOperationErr(err)
		}
		for _, pkg := range ret {
			fmt.Println(pkg)
		}
	case autoremove:
		confirm("Do you wish to remove all orphaned packages?")
		err := kilnlib.Autoremove(config)
		if err != nil {
			fatalOperationErr(err)
		}
	case rebuild:
		pkg := requirePackageArg()
		err := kilnlib.Rebuild(config, pkg)
		if err != nil {
			fatalOperationErr(err)
		}
	case rebuildSystem:
		confirm("Do you wish to rebuild every installed package?")
		err := kilnlib.RebuildSystem(config)
		if err != nil {
			fatalOperationErr(err)
		}
	case upgrade:
		pkg := requirePackageArg()
		err := kilnlib.Upgrade(config, pkg)
		if err != nil {
			fatalOperationErr(err)
		}
	case listInstalled:
		lines, err := kilnlib.ListInstalled(config)
		if err != nil {
			fatalOperationErr(err)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	case markManual:
		pkg := requirePackageArg()
		err := kilnlib.MarkManual(config, pkg)
		if err != nil {
			fatalOperationErr(err)
		}
	case search:
		if len(subcommandArgs) == 0 {
			log.Fatalf("Error: no search term was given")
		}
		results, err := kilnlib.SearchRecipes(config, subcommandArgs[0])
		if err != nil {
			fatalOperationErr(err)
		}
		if len(results) == 0 {
			fmt.Println("No recipes matched")
			return
		}
		for _, name := range results {
			fmt.Println(name)
		}
	case sync:
		err := kilnlib.Sync(config)
		if err != nil {
			fatalOperationErr(err)
		}
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("\033[1m------kiln help------\033[0m")
	fmt.Println("\033[1m\\ Command Format /\033[0m")
	fmt.Println("-> command format: kiln <subcommand> [-c, -y] <package>")
	fmt.Println("-> flags will be read if passed right after the subcommand")
	fmt.Println("\033[1m\\ Subcommands /\033[0m")
	fmt.Println("-> kiln version | shows information on this version of kiln")
	fmt.Println("-> kiln info <package> | shows recipe metadata and installed state")
	fmt.Println("-> kiln build <package> | builds the package after installing missing dependencies")
	fmt.Println("-> kiln install <package> | installs a previously built package")
	fmt.Println("-> kiln remove [-y] <package> | removes the package unless other packages depend on it")
	fmt.Println("-> kiln orphans | lists installed packages that are neither manually requested nor depended on")
	fmt.Println("-> kiln autoremove [-y] | removes all orphaned packages")
	fmt.Println("-> kiln rebuild <package> | removes, builds and reinstalls the package")
	fmt.Println("-> kiln rebuild-system [-y] | rebuilds every installed package in dependency order")
	fmt.Println("-> kiln upgrade <package> | rebuilds the package when the recipe version is newer")
	fmt.Println("-> kiln list-installed | lists installed packages with their versions")
	fmt.Println("-> kiln mark-manual <package> | marks the package as explicitly requested")
	fmt.Println("-> kiln search <term> | searches recipe names")
	fmt.Println("-> kiln sync | updates the recipe tree from its upstream repository")
	fmt.Println("\033[1m\\ Flags /\033[0m")
	fmt.Println("       -c=<path> sets the configuration file to use")
	fmt.Println("       -y skips the confirmation prompt")
	fmt.Println("\033[1m---------------------\033[0m")
}

func resolveFlags() {
	commonFlagSet := pflag.NewFlagSet("Common flags", pflag.ExitOnError)
	commonFlagSet.StringVarP(&configPath, "config", "c", "", "Set the configuration file to use")
	commonFlagSet.BoolVarP(&yesAll, "yes", "y", false, "Skip confirmation prompts")
	commonFlagSet.Usage = printHelp

	if len(os.Args[1:]) <= 0 {
		subcommand = "help"
		return
	}

	subcommand = os.Args[1]
	err := commonFlagSet.Parse(os.Args[2:])
	if err != nil {
		return
	}
	subcommandArgs = commonFlagSet.Args()
}
