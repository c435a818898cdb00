package boottree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplarRender(t *testing.T) {
	t.Parallel()

	templar := NewTemplar(map[string]any{
		"local_img_path": "/srv/tftpboot/images/rocky9",
		"web_img_path":   "/srv/www/distro_mirror/rocky9",
	})

	out, err := templar.Render("{{.local_img_path}}/efi/boot.efi")
	require.NoError(t, err)
	assert.Equal(t, "/srv/tftpboot/images/rocky9/efi/boot.efi", out)
}

func TestTemplarRenderMissingKey(t *testing.T) {
	t.Parallel()

	templar := NewTemplar(nil)
	_, err := templar.Render("{{.local_img_path}}/boot.efi")
	require.Error(t, err)
}

func TestTemplarRenderInvalidTemplate(t *testing.T) {
	t.Parallel()

	templar := NewTemplar(nil)
	_, err := templar.Render("{{.unclosed")
	require.Error(t, err)
}

func TestTemplarSet(t *testing.T) {
	t.Parallel()

	templar := NewTemplar(nil)
	templar.Set("arch", "x86_64")

	out, err := templar.Render("grub-{{.arch}}.efi")
	require.NoError(t, err)
	assert.Equal(t, "grub-x86_64.efi", out)
}

func TestTemplarRenderPlainText(t *testing.T) {
	t.Parallel()

	templar := NewTemplar(nil)
	out, err := templar.Render("/boot/pxelinux.0")
	require.NoError(t, err)
	assert.Equal(t, "/boot/pxelinux.0", out)
}
