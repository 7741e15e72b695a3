// Package directory loads the read-only roster of doctors and lab tests.
package directory

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Doctor is one bookable provider.
type Doctor struct {
	Name          string `yaml:"doctor_name" validate:"required"`
	Department    string `yaml:"doctor_department" validate:"required"`
	AvailableTime string `yaml:"doctor_available_time" validate:"required"`
	LunchBreak    string `yaml:"lunch_break"`
}

// LabTest is one bookable test with its own collection window.
type LabTest struct {
	Name                 string `yaml:"name" validate:"required"`
	Timings              string `yaml:"timings" validate:"required"`
	HomeSampleCollection bool   `yaml:"home_sample_collection"`
}

// Roster is the YAML document shape.
type Roster struct {
	Doctors  []Doctor  `yaml:"doctors" validate:"dive"`
	LabTests []LabTest `yaml:"lab_tests" validate:"dive"`
}

// Directory answers roster lookups. It is immutable after construction.
type Directory struct {
	doctors     []Doctor
	byDept      map[string][]Doctor
	deptNames   []string
	byName      map[string]Doctor
	labTests    []LabTest
	labByName   map[string]LabTest
	labNameList []string
}

// Load reads and validates a YAML roster file. Environment references in the
// file are expanded before parsing.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read roster: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse builds a Directory from YAML bytes.
func Parse(data []byte) (*Directory, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("directory: decode roster: %w", err)
	}
	return New(r)
}

var validate = validator.New()

// New validates the roster and indexes it.
func New(r Roster) (*Directory, error) {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("directory: invalid roster: %s", strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("directory: invalid roster: %w", err)
	}

	d := &Directory{
		byDept:    make(map[string][]Doctor),
		byName:    make(map[string]Doctor),
		labByName: make(map[string]LabTest),
	}
	deptDisplay := make(map[string]string)
	for _, doc := range r.Doctors {
		doc.Name = strings.TrimSpace(doc.Name)
		doc.Department = strings.TrimSpace(doc.Department)
		key := fold(doc.Name)
		if _, dup := d.byName[key]; dup {
			return nil, fmt.Errorf("directory: duplicate doctor %q", doc.Name)
		}
		d.byName[key] = doc
		d.doctors = append(d.doctors, doc)
		deptKey := fold(doc.Department)
		d.byDept[deptKey] = append(d.byDept[deptKey], doc)
		if _, ok := deptDisplay[deptKey]; !ok {
			deptDisplay[deptKey] = doc.Department
		}
	}
	for _, name := range deptDisplay {
		d.deptNames = append(d.deptNames, name)
	}
	sort.Strings(d.deptNames)

	for _, lt := range r.LabTests {
		lt.Name = strings.TrimSpace(lt.Name)
		key := fold(lt.Name)
		if _, dup := d.labByName[key]; dup {
			return nil, fmt.Errorf("directory: duplicate lab test %q", lt.Name)
		}
		d.labByName[key] = lt
		d.labTests = append(d.labTests, lt)
		d.labNameList = append(d.labNameList, lt.Name)
	}
	return d, nil
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Departments returns the distinct department names in sorted order.
func (d *Directory) Departments() []string {
	return append([]string(nil), d.deptNames...)
}

// DoctorsIn lists the doctors of a department in roster order.
func (d *Directory) DoctorsIn(department string) []Doctor {
	return append([]Doctor(nil), d.byDept[fold(department)]...)
}

// Department returns the canonical spelling of a department.
func (d *Directory) Department(name string) (string, bool) {
	docs := d.byDept[fold(name)]
	if len(docs) == 0 {
		return "", false
	}
	return docs[0].Department, true
}

// Doctor looks up a doctor by name, ignoring case.
func (d *Directory) Doctor(name string) (Doctor, bool) {
	doc, ok := d.byName[fold(name)]
	return doc, ok
}

// Doctors returns every doctor in roster order.
func (d *Directory) Doctors() []Doctor {
	return append([]Doctor(nil), d.doctors...)
}

// LabTests returns every lab test in roster order.
func (d *Directory) LabTests() []LabTest {
	return append([]LabTest(nil), d.labTests...)
}

// LabTestNames returns the test names in roster order.
func (d *Directory) LabTestNames() []string {
	return append([]string(nil), d.labNameList...)
}

// LabTest looks up a test by name, ignoring case.
func (d *Directory) LabTest(name string) (LabTest, bool) {
	lt, ok := d.labByName[fold(name)]
	return lt, ok
}
