/*
 * This file is part of Artiswarm.
 *
 * Artiswarm is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Artiswarm is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Artiswarm.  If not, see <http://www.gnu.org/licenses/>.
 */

package engine

import (
	"fmt"
	"net"
	"net/url"
)

// ConfigurationError is returned when the engine cannot be started with the given settings.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

var supportedTrackerSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"udp":   {},
}

// ValidateStart checks the tracker URI and resolves every local listen address.
func ValidateStart(localAddresses []string, trackerURI string) error {
	u, err := url.Parse(trackerURI)
	if err != nil {
		return &ConfigurationError{Field: "tracker uri", Value: trackerURI, Err: err}
	}

	if _, ok := supportedTrackerSchemes[u.Scheme]; !ok {
		return &ConfigurationError{Field: "tracker uri", Value: trackerURI,
			Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	if u.Hostname() == "" {
		return &ConfigurationError{Field: "tracker uri", Value: trackerURI, Err: fmt.Errorf("missing host")}
	}

	for _, addr := range localAddresses {
		if _, err = net.ResolveTCPAddr("tcp", addr); err != nil {
			return &ConfigurationError{Field: "local address", Value: addr, Err: err}
		}
	}

	return nil
}
