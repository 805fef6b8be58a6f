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

package config

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	onceClient sync.Once
	initErr    error
)

// setDefaults wires every tunable the client consults.  All of these can be
// overridden via a config file or the SKYHOOK_ environment prefix (dots map
// to underscores, e.g. SKYHOOK_TRANSFER_RETRYCEILING).
func setDefaults() {
	viper.SetDefault("Catalog.BaseUrl", "https://catalogue.dataspace.copernicus.eu/odata/v1")
	viper.SetDefault("Catalog.DownloadBaseUrl", "https://zipper.dataspace.copernicus.eu/odata/v1")
	viper.SetDefault("Catalog.QueryTimeout", 30*time.Second)

	viper.SetDefault("Auth.TokenUrl", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	viper.SetDefault("Auth.ClientId", "cdse-public")
	viper.SetDefault("Auth.TokenTimeout", 15*time.Second)
	viper.SetDefault("Auth.KeysManagerUrl", "https://s3-keys-manager.cloudferro.com/api/user/credentials")
	viper.SetDefault("Auth.ObjectStoreRole", "copernicus-s3-access")

	viper.SetDefault("Store.EndpointUrl", "https://eodata.dataspace.copernicus.eu")
	viper.SetDefault("Store.Region", "default")
	viper.SetDefault("Store.Bucket", "eodata")

	viper.SetDefault("Transfer.RetryCeiling", 3)
	viper.SetDefault("Transfer.Workers", 1)
	viper.SetDefault("Transfer.ObjectTimeout", 1*time.Hour)
	viper.SetDefault("Transfer.ValidateAfterDownload", false)
	viper.SetDefault("Transfer.DisableProgressBars", false)

	viper.SetDefault("BulkCopy.Enabled", false)
	viper.SetDefault("BulkCopy.Binary", "s5cmd")

	viper.SetDefault("Transport.MaxIdleConns", 30)
	viper.SetDefault("Transport.IdleConnTimeout", 90*time.Second)
	viper.SetDefault("Transport.TLSHandshakeTimeout", 15*time.Second)
	viper.SetDefault("Transport.ExpectContinueTimeout", 1*time.Second)
	viper.SetDefault("Transport.ResponseHeaderTimeout", 30*time.Second)
	viper.SetDefault("Transport.DialerTimeout", 10*time.Second)
	viper.SetDefault("Transport.DialerKeepAlive", 30*time.Second)
	viper.SetDefault("TLSSkipVerify", false)
}

// InitClient initializes the viper-backed configuration for client
// invocations.  Safe to call multiple times; only the first call does work.
func InitClient() error {
	onceClient.Do(func() {
		viper.SetEnvPrefix("SKYHOOK")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		// The catalog's conventional credential variables are accepted as-is
		// so existing user environments keep working.
		if err := viper.BindEnv("Client.Username", "SKYHOOK_CLIENT_USERNAME", "CDSE_USERNAME"); err != nil {
			initErr = errors.Wrap(err, "failed to bind username environment variable")
			return
		}
		if err := viper.BindEnv("Client.Password", "SKYHOOK_CLIENT_PASSWORD", "CDSE_PASSWORD"); err != nil {
			initErr = errors.Wrap(err, "failed to bind password environment variable")
			return
		}

		setDefaults()

		if cfgFile := viper.GetString("config"); cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				initErr = errors.Wrapf(err, "failed to read config file %s", cfgFile)
				return
			}
			log.Debugln("Loaded configuration from", viper.ConfigFileUsed())
		}
	})
	return initErr
}

// GetCredentials returns the long-lived username/password pair from the
// configuration.  An error is returned when either half is missing; the
// client never prompts interactively.
func GetCredentials() (username, password string, err error) {
	username = viper.GetString("Client.Username")
	password = viper.GetString("Client.Password")
	if username == "" || password == "" {
		err = errors.New("no credentials configured; set Client.Username/Client.Password or the CDSE_USERNAME/CDSE_PASSWORD environment variables")
	}
	return
}
