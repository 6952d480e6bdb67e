package proc

import "fmt"

// RegisterClass groups registers by the ptrace request used to access
// them.
type RegisterClass uint8

const (
	RegisterClassGPR RegisterClass = iota
	RegisterClassSubGPR
	RegisterClassFPR
	RegisterClassDR
)

func (c RegisterClass) String() string {
	switch c {
	case RegisterClassGPR:
		return "gpr"
	case RegisterClassSubGPR:
		return "sub_gpr"
	case RegisterClassFPR:
		return "fpr"
	case RegisterClassDR:
		return "dr"
	}
	return fmt.Sprintf("RegisterClass(%d)", uint8(c))
}

// RegisterFormat is the interpretation of the bytes of a register.
type RegisterFormat uint8

const (
	RegisterFormatUInt RegisterFormat = iota
	RegisterFormatDoubleFloat
	RegisterFormatLongDouble
	RegisterFormatVector
)

// RegisterInfo describes a register: where it lives in the user area
// (struct user) of the tracee and how its bytes are to be interpreted.
type RegisterInfo struct {
	ID      RegisterID
	Name    string
	DwarfID int // -1 if the register has no DWARF number
	Size    int
	Offset  int
	Class   RegisterClass
	Format  RegisterFormat
}

func (id RegisterID) String() string {
	if info, err := RegisterInfoByID(id); err == nil {
		return info.Name
	}
	return fmt.Sprintf("RegisterID(%d)", int(id))
}

var registerInfosByName = func() map[string]*RegisterInfo {
	m := make(map[string]*RegisterInfo, len(RegisterInfos))
	for i := range RegisterInfos {
		m[RegisterInfos[i].Name] = &RegisterInfos[i]
	}
	return m
}()

// RegisterInfoByID returns the description of register id.
func RegisterInfoByID(id RegisterID) (RegisterInfo, error) {
	if id < 0 || int(id) >= len(RegisterInfos) {
		return RegisterInfo{}, RegisterNotFoundError{Key: id}
	}
	return RegisterInfos[id], nil
}

// RegisterInfoByName returns the description of the register called name.
func RegisterInfoByName(name string) (RegisterInfo, error) {
	info, ok := registerInfosByName[name]
	if !ok {
		return RegisterInfo{}, RegisterNotFoundError{Key: name}
	}
	return *info, nil
}

// RegisterInfoByDwarfID returns the description of the register with DWARF
// register number dwarfID.
func RegisterInfoByDwarfID(dwarfID int) (RegisterInfo, error) {
	if dwarfID >= 0 {
		for i := range RegisterInfos {
			if RegisterInfos[i].DwarfID == dwarfID {
				return RegisterInfos[i], nil
			}
		}
	}
	return RegisterInfo{}, RegisterNotFoundError{Key: dwarfID}
}

// RegisterNames returns the names of all registers of class c, in table
// order.
func RegisterNames(c RegisterClass) []string {
	var r []string
	for i := range RegisterInfos {
		if RegisterInfos[i].Class == c {
			r = append(r, RegisterInfos[i].Name)
		}
	}
	return r
}
