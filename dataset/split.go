// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"github.com/juju/errors"
)

// SecondsPerDay converts test_days into a timestamp offset.
const SecondsPerDay = 86400

// Split is a temporal train/test partition.
type Split struct {
	Train  Table
	Test   Table
	Cutoff int64
	// ColdStart counts test rows dropped because their user or item never appears in Train.
	ColdStart int
}

// SplitByTime puts rows older than max(timestamp) - testDays days into Train and
// the rest into Test, then drops cold-start rows from Test. Train is never trimmed.
func SplitByTime(table Table, testDays int) (*Split, error) {
	if len(table) == 0 {
		return nil, errors.NotValidf("empty interaction table")
	}
	if testDays < 0 {
		return nil, errors.NotValidf("test days %d", testDays)
	}
	split := &Split{Cutoff: table.MaxTimestamp() - int64(testDays)*SecondsPerDay}
	var test Table
	for _, row := range table {
		if row.Timestamp < split.Cutoff {
			split.Train = append(split.Train, row)
		} else {
			test = append(test, row)
		}
	}
	users, items := split.Train.Users(), split.Train.Items()
	for _, row := range test {
		if users.Contains(row.UserIndex) && items.Contains(row.ItemIndex) {
			split.Test = append(split.Test, row)
		} else {
			split.ColdStart++
		}
	}
	return split, nil
}
