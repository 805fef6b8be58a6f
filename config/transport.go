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
	"crypto/tls"
	"net"
	"net/http"
	"sync"

	"github.com/spf13/viper"
)

var (
	// Our global transport that only gets configured once
	transport *http.Transport

	onceTransport sync.Once
)

// GetTransport returns the shared HTTP transport, setting it up on first use.
// Every outbound network call in the client goes through this transport so
// dialer and header timeouts are enforced uniformly.
func GetTransport() *http.Transport {
	onceTransport.Do(func() {
		setupTransport()
	})
	return transport
}

func setupTransport() {
	dialer := net.Dialer{
		Timeout:   viper.GetDuration("Transport.DialerTimeout"),
		KeepAlive: viper.GetDuration("Transport.DialerKeepAlive"),
	}

	transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          viper.GetInt("Transport.MaxIdleConns"),
		IdleConnTimeout:       viper.GetDuration("Transport.IdleConnTimeout"),
		TLSHandshakeTimeout:   viper.GetDuration("Transport.TLSHandshakeTimeout"),
		ExpectContinueTimeout: viper.GetDuration("Transport.ExpectContinueTimeout"),
		ResponseHeaderTimeout: viper.GetDuration("Transport.ResponseHeaderTimeout"),
	}
	if viper.GetBool("TLSSkipVerify") {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
}
