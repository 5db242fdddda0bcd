// Package password verifies submitted secrets against stored salted hashes.
//
// Two stored formats are understood:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>   (PHC string)
//	$2a$ / $2b$ / $2y$ bcrypt strings
//
// New hashes are always argon2id. bcrypt is accepted on the verify path so that
// directories seeded by other services keep working; [Argon2.NeedsUpgrade]
// reports true for them.
//
// Verification never logs or retains the plaintext.
package password
