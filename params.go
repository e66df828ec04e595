/*
Copyright © 2026 the Downscale authors.
This file is part of Downscale.

Downscale is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Downscale is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Downscale.  If not, see <http://www.gnu.org/licenses/>.
*/

package downscale

import (
	"encoding/gob"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cenkalti/backoff"
)

// ReadParameters decodes a gob-encoded model parameter blob from r into
// out, which should be a pointer to the variant's parameter struct
// (BiasCorrectionParams, SuperResolutionParams, ...). The blob is opaque
// to the pipeline; loading happens once at model construction, outside the
// inference loop.
func ReadParameters(r io.Reader, out interface{}) error {
	if err := gob.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("downscale: while decoding model parameters: %v", err)
	}
	return nil
}

// WriteParameters gob-encodes a model parameter blob to w.
func WriteParameters(w io.Writer, params interface{}) error {
	if err := gob.NewEncoder(w).Encode(params); err != nil {
		return fmt.Errorf("downscale: while encoding model parameters: %v", err)
	}
	return nil
}

// LoadParameters reads a parameter blob from the file at path, retrying
// transient failures with exponential backoff because parameter stores are
// often network mounts.
func LoadParameters(path string, out interface{}) error {
	return backoff.RetryNotify(
		func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return ReadParameters(f, out)
		},
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4),
		func(err error, d time.Duration) {
			log.Printf("downscale: loading model parameters from %s: %v; retrying in %v", path, err, d)
		},
	)
}
