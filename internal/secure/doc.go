// Package secure keeps sensitive bytes, such as a service-account key, out of
// plain Go memory.
//
// Data handed to NewSecureBuffer is copied into a memguard enclave, encrypted
// at rest, and the source slice is wiped. Open decrypts into a locked buffer
// that the caller must Destroy as soon as the plaintext is no longer needed:
//
//	buf, err := secure.NewSecureBuffer(keyJSON)
//	if err != nil {
//	    return err
//	}
//	defer buf.Destroy()
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	use(locked.Bytes())
//
// On Linux mlock depends on RLIMIT_MEMLOCK; memguard falls back to ordinary
// memory when locking is not possible.
package secure
