package sysprobe_test

import (
	"errors"
	"testing"

	"apupdater/sysprobe"
)

func fakeProbe(answers map[string]string) *sysprobe.HostProbe {
	return &sysprobe.HostProbe{
		Shell: func(name string, args ...string) (string, error) {
			key := name
			for _, a := range args {
				key += " " + a
			}
			if v, ok := answers[key]; ok {
				return v, nil
			}
			return "", errors.New("unexpected command: " + key)
		},
	}
}

func TestMainFWAct(t *testing.T) {
	t.Log("Test decoding mainfw_act A/B")
	p := fakeProbe(map[string]string{"crossystem mainfw_act": "B"})
	v, err := p.Get(sysprobe.MainFWAct)
	if err != nil {
		t.Fatalf("Get failed. Except: nil But: %v", err)
	}
	if v != 1 {
		t.Fatalf("Wrong mainfw_act. Except: 1 But: %d", v)
	}
}

func TestPlatformVersionParsesRevToken(t *testing.T) {
	t.Log("Test extracting revN from mosys platform version output")
	p := fakeProbe(map[string]string{"mosys platform version": "Version: rev4"})
	v, err := p.Get(sysprobe.PlatformVersion)
	if err != nil {
		t.Fatalf("Get failed. Except: nil But: %v", err)
	}
	if v != 4 {
		t.Fatalf("Wrong platform version. Except: 4 But: %d", v)
	}
}

func TestWPSWFallsBackToWPSWBoot(t *testing.T) {
	t.Log("Test wpsw_cur falling back to wpsw_boot when unavailable")
	p := fakeProbe(map[string]string{
		"crossystem wpsw_cur":  "",
		"crossystem wpsw_boot": "1",
	})
	v, err := p.Get(sysprobe.WPSW)
	if err != nil {
		t.Fatalf("Get failed. Except: nil But: %v", err)
	}
	if v != 1 {
		t.Fatalf("Wrong wpsw. Except: 1 But: %d", v)
	}
}

func TestWPHWParsesFlashromStatus(t *testing.T) {
	t.Log("Test that WPHW decodes flashrom's write-protect status line")
	p := fakeProbe(map[string]string{
		"flashrom -p host --wp-status": "WP: write protect is enabled.\n",
	})
	v, err := p.Get(sysprobe.WPHW)
	if err != nil {
		t.Fatalf("Get failed. Except: nil But: %v", err)
	}
	if v != 1 {
		t.Fatalf("Wrong wphw. Except: 1 But: %d", v)
	}
}

func TestCachingProbeMemoizes(t *testing.T) {
	t.Log("Test that CachingProbe only queries each property once")
	calls := 0
	inner := fakeProbe(map[string]string{"crossystem mainfw_act": "A"})
	inner.Shell = func(name string, args ...string) (string, error) {
		calls++
		return "A", nil
	}
	c := sysprobe.NewCachingProbe(inner)
	c.Get(sysprobe.MainFWAct)
	c.Get(sysprobe.MainFWAct)
	if calls != 1 {
		t.Fatalf("Wrong call count. Except: 1 But: %d", calls)
	}
}

func TestOverrideFromList(t *testing.T) {
	t.Log("Test overriding properties from a comma-separated list")
	c := sysprobe.NewCachingProbe(fakeProbe(nil))
	if err := c.OverrideFromList("mainfw_act=1,wpsw_cur=0"); err != nil {
		t.Fatalf("OverrideFromList failed. Except: nil But: %v", err)
	}
	v, _ := c.Get(sysprobe.MainFWAct)
	if v != 1 {
		t.Fatalf("Wrong overridden mainfw_act. Except: 1 But: %d", v)
	}
}
