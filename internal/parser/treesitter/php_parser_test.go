// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package treesitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractsClassAttributesAndMethods(t *testing.T) {
	src := []byte(`<?php
namespace App\Controller;

#[Entity]
class User
{
	#[Route(path: "/users")]
	public function index() {}
}
`)

	p := &Parser{}
	symbols, err := p.Parse(context.Background(), "src/Controller/User.php", src)
	require.NoError(t, err)
	require.Len(t, symbols, 1)

	sym := symbols[0]
	assert.Equal(t, `\App\Controller\User`, sym.FQN)
	require.Len(t, sym.Attributes, 1)
	assert.Equal(t, "Entity", sym.Attributes[0].Name)
	require.Len(t, sym.Methods, 1)
	assert.Equal(t, "index", sym.Methods[0].Name)
	require.Len(t, sym.Methods[0].Attributes, 1)
	assert.Equal(t, "Route", sym.Methods[0].Attributes[0].Name)
}

func TestParseRejectsOversizedContent(t *testing.T) {
	p := &Parser{MaxSize: 4}
	_, err := p.Parse(context.Background(), "big.php", []byte("<?php"))
	assert.ErrorIs(t, err, ErrContentTooLarge)
}
