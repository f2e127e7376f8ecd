// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package phpformatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discoveryd/discoveryd/internal/metadata"
)

func TestFormatRendersDoubledBackslashesAndStrictTypes(t *testing.T) {
	snapshot := map[string]metadata.Symbol{
		`\App\Controller\User`: {
			FQN:  `\App\Controller\User`,
			Path: "src/Controller/User.php",
			Kind: metadata.KindClass,
			Attributes: []metadata.AttributeRef{
				{Name: "Route", Args: []metadata.ArgValue{{Name: "path", Scalar: "/users"}}},
			},
			Methods: []metadata.Member{
				{Name: "index", Kind: "method", Attributes: []metadata.AttributeRef{{Name: "Get"}}},
			},
		},
	}

	out, err := Formatter{}.Format(snapshot, false)
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "<?php declare(strict_types=1); return ["))
	assert.Contains(t, s, `\\App\\Controller\\User`)
	assert.Contains(t, s, "'Route'")
	assert.Contains(t, s, "'index'")
	assert.NotContains(t, s, "{")
}

func TestFormatRendersAttributesAsFQNKeyedInstanceMap(t *testing.T) {
	snapshot := map[string]metadata.Symbol{
		`\A\B`: {
			FQN:  `\A\B`,
			Path: "a.php",
			Kind: metadata.KindClass,
			Attributes: []metadata.AttributeRef{
				{Name: `R`, Args: []metadata.ArgValue{{Name: "path", Scalar: "/x"}}},
			},
		},
	}

	out, err := Formatter{}.Format(snapshot, false)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `'file' => 'a.php'`)
	assert.Contains(t, s, `'type' => 'class'`)
	assert.Contains(t, s, `'attributes' => ['R' => [['path' => '/x',],],]`)
	assert.Contains(t, s, `'methods' => []`)
	assert.Contains(t, s, `'properties' => []`)
}

func TestFormatEmptySnapshotProducesEmptyArray(t *testing.T) {
	out, err := Formatter{}.Format(map[string]metadata.Symbol{}, false)
	require.NoError(t, err)
	assert.Equal(t, "<?php declare(strict_types=1); return [];", string(out))
}
