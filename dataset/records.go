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
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// InteractionRecord is a raw rating event read from the source.
type InteractionRecord struct {
	UserId    string
	ItemId    string
	Rating    float64
	Timestamp int64
}

// FieldMap names the JSON fields that hold each column of a record.
type FieldMap struct {
	User   string `mapstructure:"user" validate:"required"`
	Item   string `mapstructure:"item" validate:"required"`
	Rating string `mapstructure:"rating" validate:"required"`
	Time   string `mapstructure:"time" validate:"required"`
}

// DefaultFieldMap matches the Amazon review dumps.
var DefaultFieldMap = FieldMap{
	User:   "reviewerID",
	Item:   "asin",
	Rating: "overall",
	Time:   "unixReviewTime",
}

const maxLineSize = 16 * 1024 * 1024

// LoadRecords reads newline-delimited JSON records. Blank lines are skipped.
func LoadRecords(r io.Reader, fields FieldMap) ([]InteractionRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var records []InteractionRecord
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		record, err := parseRecord(line, fields)
		if err != nil {
			return nil, errors.NewNotValid(err, "line "+strconv.Itoa(lineNumber))
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return records, nil
}

func parseRecord(line []byte, fields FieldMap) (InteractionRecord, error) {
	var row map[string]any
	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.UseNumber()
	if err := decoder.Decode(&row); err != nil {
		return InteractionRecord{}, errors.Trace(err)
	}
	var (
		record InteractionRecord
		err    error
	)
	if record.UserId, err = identifier(row, fields.User); err != nil {
		return record, err
	}
	if record.ItemId, err = identifier(row, fields.Item); err != nil {
		return record, err
	}
	if record.Rating, err = number(row, fields.Rating); err != nil {
		return record, err
	}
	timestamp, err := number(row, fields.Time)
	if err != nil {
		return record, err
	}
	record.Timestamp = int64(timestamp)
	return record, nil
}

func identifier(row map[string]any, field string) (string, error) {
	value, exist := row[field]
	if !exist || value == nil {
		return "", errors.NotFoundf("field %s", field)
	}
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	default:
		return "", errors.NotValidf("identifier %v in field %s", value, field)
	}
}

func number(row map[string]any, field string) (float64, error) {
	value, exist := row[field]
	if !exist || value == nil {
		return 0, errors.NotFoundf("field %s", field)
	}
	switch typed := value.(type) {
	case json.Number:
		f, err := typed.Float64()
		return f, errors.Trace(err)
	case string:
		f, err := strconv.ParseFloat(typed, 64)
		if err != nil {
			return 0, errors.NotValidf("number %q in field %s", typed, field)
		}
		return f, nil
	default:
		return 0, errors.NotValidf("number %v in field %s", value, field)
	}
}

// FilterPositive keeps records rated at least minRating.
func FilterPositive(records []InteractionRecord, minRating float64) []InteractionRecord {
	return lo.Filter(records, func(r InteractionRecord, _ int) bool {
		return r.Rating >= minRating
	})
}
