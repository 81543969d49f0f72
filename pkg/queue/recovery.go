package queue

import (
	"encoding/binary"
	"os"
)

// RecoveryInfo is the state the I/O worker resumes from after startup.
type RecoveryInfo struct {
	NextSequence   uint64
	FileSequence   uint32
	WritePosition  uint64
	MessageCount   uint64
	CompletedFiles []FileEntry
}

// RecoveryResult bundles the derived state with the ManifestWriter so the
// queue façade can keep using it without re-reading the pointer file.
type RecoveryResult struct {
	Info            RecoveryInfo
	ManifestWriter  *ManifestWriter
}

// recover derives write state from the manifest plus a bounded forward scan
// of the active file's tail.
func recover(base string, verifyOnStartup bool) (*RecoveryResult, error) {
	mw, err := NewManifestWriter(base)
	if err != nil {
		return nil, err
	}

	manifest, err := mw.ReadLatest()
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return &RecoveryResult{Info: RecoveryInfo{}, ManifestWriter: mw}, nil
	}

	info, err := recoverFromManifest(manifest, verifyOnStartup)
	if err != nil {
		return nil, err
	}
	return &RecoveryResult{Info: info, ManifestWriter: mw}, nil
}

func recoverFromManifest(manifest *Manifest, verifyOnStartup bool) (RecoveryInfo, error) {
	active := manifest.ActiveFile

	pathMissing := active.Path == ""
	if !pathMissing {
		if _, err := os.Stat(active.Path); os.IsNotExist(err) {
			pathMissing = true
		}
	}
	if pathMissing {
		// Trust the manifest verbatim: either there was never an active
		// file, or it vanished between writing the manifest and recovery
		// (both treated as "nothing more to scan").
		return RecoveryInfo{
			NextSequence:   manifest.NextSequence,
			FileSequence:   active.FileSequence,
			WritePosition:  0,
			MessageCount:   0,
			CompletedFiles: manifest.Files,
		}, nil
	}

	additional, finalPosition, err := scanDataFileFrom(active.Path, active.WritePosition, verifyOnStartup)
	if err != nil {
		return RecoveryInfo{}, err
	}

	return RecoveryInfo{
		NextSequence:   manifest.NextSequence + additional,
		FileSequence:   active.FileSequence,
		WritePosition:  finalPosition,
		MessageCount:   active.MessageCount + additional,
		CompletedFiles: manifest.Files,
	}, nil
}

// scanDataFileFrom opens path read-only and scans forward from start,
// counting valid wire records until it hits end-of-file, a truncated tail,
// or (if verifyCRC) a CRC mismatch. It never skips past a bad record; any
// of those conditions stops the scan and returns the last known-good
// position. Returns (additional message count, final write position).
func scanDataFileFrom(path string, start uint64, verifyCRC bool) (uint64, uint64, error) {
	rd, err := OpenReadOnlyDataFile(path)
	if err != nil {
		return 0, 0, err
	}
	defer rd.Close()

	fileSize := rd.Size()
	pos := start
	var count uint64

	for pos+lengthFieldSize <= fileSize {
		var lenBuf [lengthFieldSize]byte
		if err := rd.ReadAt(pos, lenBuf[:]); err != nil {
			return count, pos, err
		}
		length := binary.LittleEndian.Uint32(lenBuf[:])
		if length == 0 {
			// Unwritten space reads as a zero length with a zero CRC field; an
			// empty-payload record carries the valid CRC for length 0.
			var crcBuf [crcFieldSize]byte
			if pos+uint64(messageDiskSize(0)) > fileSize ||
				rd.ReadAt(pos+lengthFieldSize, crcBuf[:]) != nil ||
				!verifyMessageCRC(0, nil, binary.LittleEndian.Uint32(crcBuf[:])) {
				break
			}
		}

		total := uint64(messageDiskSize(int(length)))
		if pos+total > fileSize {
			break
		}

		if verifyCRC {
			payload := make([]byte, length)
			if err := rd.ReadAt(pos+lengthFieldSize, payload); err != nil {
				return count, pos, err
			}
			var crcBuf [crcFieldSize]byte
			if err := rd.ReadAt(pos+lengthFieldSize+uint64(length), crcBuf[:]); err != nil {
				return count, pos, err
			}
			stored := binary.LittleEndian.Uint32(crcBuf[:])
			if !verifyMessageCRC(length, payload, stored) {
				break
			}
		}

		pos += total
		count++
	}

	return count, pos, nil
}
