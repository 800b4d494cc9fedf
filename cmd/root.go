package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/klmry/stockwatch/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stockwatch",
	Short: "Watches a product page and emails you when the item is purchasable again.",
	Long: `stockwatch fetches a single product page, decides whether the item looks
purchasable, and sends email on the transition back to in-stock plus a
once-a-day status report. Run it from cron or a systemd timer, one
invocation per tick; it keeps its state between runs and exits.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stockwatch.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env file next to the binary is handy under cron; absence is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".stockwatch")
		viper.SetConfigType("yaml")
	}

	// page_url etc. resolve against PAGE_URL and friends in the environment.
	viper.AutomaticEnv()

	// The config file is optional; env vars alone are enough.
	_ = viper.ReadInConfig()

	// Set default values for optional keys
	viper.SetDefault("secondary_recipient", "")
	viper.SetDefault("timezone", "America/New_York")
	viper.SetDefault("state_db", "")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
