package identity

import "testing"

func TestSessionKeyStable(t *testing.T) {
	k, err := NewKeyer(SHA256, "salt")
	if err != nil {
		t.Fatalf("NewKeyer: %v", err)
	}

	a, err := k.SessionKey("alice")
	if err != nil {
		t.Fatalf("SessionKey: %v", err)
	}
	b, err := k.SessionKey("alice")
	if err != nil {
		t.Fatalf("SessionKey: %v", err)
	}
	if a != b {
		t.Fatalf("same identifier produced different keys: %s != %s", a, b)
	}

	c, _ := k.SessionKey("bob")
	if a == c {
		t.Fatal("different identifiers collided")
	}
}

func TestSaltChangesKey(t *testing.T) {
	k1, _ := NewKeyer(SHA256, "salt-one")
	k2, _ := NewKeyer(SHA256, "salt-two")

	a, _ := k1.SessionKey("alice")
	b, _ := k2.SessionKey("alice")
	if a == b {
		t.Fatal("different salts produced the same key")
	}
}

func TestAlgorithmsDiffer(t *testing.T) {
	keys := map[Algorithm]string{}
	for _, alg := range []Algorithm{SHA256, SHA512, BLAKE2b} {
		k, err := NewKeyer(alg, "salt")
		if err != nil {
			t.Fatalf("NewKeyer(%s): %v", alg, err)
		}
		if k.Algorithm() != alg {
			t.Fatalf("Algorithm: got %s, want %s", k.Algorithm(), alg)
		}
		key, err := k.SessionKey("alice")
		if err != nil {
			t.Fatalf("SessionKey(%s): %v", alg, err)
		}
		keys[alg] = key
	}

	if keys[SHA256] == keys[SHA512] || keys[SHA256] == keys[BLAKE2b] || keys[SHA512] == keys[BLAKE2b] {
		t.Fatalf("digest outputs collided: %v", keys)
	}
	// blake2b-256 and sha256 both emit 32 bytes, sha512 emits 64.
	if len(keys[SHA256]) != 64 || len(keys[BLAKE2b]) != 64 || len(keys[SHA512]) != 128 {
		t.Fatalf("unexpected key lengths: %d %d %d", len(keys[SHA256]), len(keys[BLAKE2b]), len(keys[SHA512]))
	}
}

func TestUnknownAlgorithmRejected(t *testing.T) {
	if _, err := NewKeyer("md5", "salt"); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}
