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

package transfer

import (
	log "github.com/sirupsen/logrus"

	"github.com/eodiscover/skyhook/auth"
)

// PathKind identifies which delivery path a transfer uses.
type PathKind int

const (
	// PathMediated streams bytes through the catalog service.
	PathMediated PathKind = iota
	// PathDirect fetches objects straight from the object store using a
	// temporary credential.
	PathDirect
)

func (p PathKind) String() string {
	if p == PathDirect {
		return "direct"
	}
	return "mediated"
}

// SelectPath inspects the bearer token's granted-role claims and picks the
// delivery path.  Without the object-store role the mediated path is used
// unconditionally.  A DirectPath result is provisional: role presence does
// not guarantee the temporary credential actually grants bucket access, so
// the orchestrator still probes connectivity before committing.
func SelectPath(token string) PathKind {
	ok, err := auth.HasObjectStoreRole(token)
	if err != nil {
		log.Warnln("Could not inspect token claims; using the mediated path:", err)
		return PathMediated
	}
	if !ok {
		log.Debugln("Token carries no object-store role; using the mediated path")
		return PathMediated
	}
	return PathDirect
}
