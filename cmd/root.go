/***************************************************************
 *
 * Copyright (C) 2025, Skyhook Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package main

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eodiscover/skyhook/config"
)

var (
	cfgFile    string
	outputJSON bool

	rootCmd = &cobra.Command{
		Use:   "skyhook",
		Short: "Search and download Earth-observation products",
		Long: `The skyhook client searches the Copernicus Data Space catalog and
downloads satellite products, picking the fastest delivery path the
account's entitlements allow.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Local .env files are a convenient place for CDSE_USERNAME and
			// CDSE_PASSWORD; absence is not an error.
			if err := godotenv.Load(); err == nil {
				log.Debugln("Loaded environment from .env")
			}
			if cfgFile != "" {
				viper.Set("config", cfgFile)
			}
			if err := config.InitClient(); err != nil {
				return err
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file to use")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Emit results as JSON")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Errorln(err)
		os.Exit(1)
	}
	return err
}
