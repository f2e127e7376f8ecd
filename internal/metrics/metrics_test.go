// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderIncludesIncrementedCounters(t *testing.T) {
	m := New()
	m.ScansTotal.Inc()
	m.SymbolsTotal.Set(42)

	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, out, "discoveryd_scans_total 1")
	assert.Contains(t, out, "discoveryd_symbols_total 42")
	assert.True(t, strings.Contains(out, "# HELP discoveryd_scans_total"))
}
