package security

import (
	"testing"
)

func TestValidateVolumeName(t *testing.T) {
	v := NewValidator(1024, 1024)

	tests := []struct {
		name      string
		shouldErr bool
	}{
		{"sample.tif", false},
		{"sample_20240101_120000.tif", false},
		{"no extension", false},
		{"../etc/passwd", true},
		{"/etc/passwd", true},
		{"dir/file.tif", true},
		{`dir\file.tif`, true},
		{"..", true},
		{"", true},
		{"   ", true},
	}

	for _, tt := range tests {
		err := v.ValidateVolumeName(tt.name)
		if tt.shouldErr && err == nil {
			t.Errorf("expected error for name: %q", tt.name)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("unexpected error for name %q: %v", tt.name, err)
		}
	}
}

func TestValidateDescriptorSize(t *testing.T) {
	v := NewValidator(100, 1000)

	if err := v.ValidateDescriptorSize(50); err != nil {
		t.Errorf("expected no error for size 50, got: %v", err)
	}

	if err := v.ValidateDescriptorSize(150); err == nil {
		t.Error("expected error for size 150 exceeding limit 100")
	}
}

func TestValidateVolumeSize(t *testing.T) {
	v := NewValidator(1024, 4*4*3*2)

	if err := v.ValidateVolumeSize(4, 4, 3, 2); err != nil {
		t.Errorf("expected 4x4x3 uint16 volume to fit, got: %v", err)
	}

	if err := v.ValidateVolumeSize(4, 5, 3, 2); err == nil {
		t.Error("expected error for volume exceeding limit")
	}

	if err := v.ValidateVolumeSize(0, 4, 3, 2); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestSanitizeVolumeName(t *testing.T) {
	tests := map[string]string{
		"sample.tif":     "sample.tif",
		"a/b.tif":        "a_b.tif",
		`a\b.tif`:        "a_b.tif",
		"..":             "image",
		"":               "image",
		"  padded.tif  ": "padded.tif",
	}

	v := NewValidator(1, 1)
	for in, want := range tests {
		got := SanitizeVolumeName(in)
		if got != want {
			t.Errorf("SanitizeVolumeName(%q) = %q, want %q", in, got, want)
		}
		if err := v.ValidateVolumeName(got); err != nil {
			t.Errorf("sanitized name %q still invalid: %v", got, err)
		}
	}
}
