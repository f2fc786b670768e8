package password

import "testing"

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range uintKnobs {
		t.Setenv(k.env, "")
	}
	t.Setenv("MSG_PASSWORD_REJECT_VERY_WEAK", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("MSG_PASSWORD_MIN_LEN", "10")
	t.Setenv("MSG_PASSWORD_MAX_LEN", "200")
	t.Setenv("MSG_PASSWORD_REJECT_VERY_WEAK", "false")
	t.Setenv("MSG_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("MSG_ARGON2_ITERATIONS", "4")
	t.Setenv("MSG_ARGON2_PARALLELISM", "2")
	t.Setenv("MSG_ARGON2_SALT_LEN", "24")
	t.Setenv("MSG_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	want := Config{
		Params: Params{MemoryKiB: 32768, Iterations: 4, Parallelism: 2, SaltLength: 24, KeyLength: 32},
		Policy: Policy{MinLength: 10, MaxLength: 200, RejectVeryWeak: false},
	}
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"MSG_ARGON2_ITERATIONS":         "0",
		"MSG_ARGON2_MEMORY_KIB":         "abc",
		"MSG_PASSWORD_REJECT_VERY_WEAK": "maybe",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", k, v)
			}
		})
	}

	t.Run("min>max", func(t *testing.T) {
		t.Setenv("MSG_PASSWORD_MIN_LEN", "20")
		t.Setenv("MSG_PASSWORD_MAX_LEN", "10")
		if _, err := FromEnv(); err == nil {
			t.Fatalf("expected error")
		}
	})
}
